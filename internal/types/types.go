// Package types holds the data shared across the tracker.
package types

import (
	"time"
)

// BBox is the geographic query region
type BBox struct {
	LaMin float64 `json:"lamin"`
	LaMax float64 `json:"lamax"`
	LoMin float64 `json:"lomin"`
	LoMax float64 `json:"lomax"`
}

// NewBBox builds a bounding box around a centre point
func NewBBox(lat, lon, deltaLat, deltaLon float64) BBox {
	return BBox{
		LaMin: lat - deltaLat,
		LaMax: lat + deltaLat,
		LoMin: lon - deltaLon,
		LoMax: lon + deltaLon,
	}
}

// AircraftState is one aircraft in a provider snapshot. Units are metres,
// metres per second and degrees; nil means the provider did not report it.
type AircraftState struct {
	ICAO24        string   `json:"icao24"`
	Callsign      *string  `json:"callsign"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	BaroAltitude  *float64 `json:"baro_altitude"`
	Velocity      *float64 `json:"velocity"`
	Heading       *float64 `json:"heading"`
	OnGround      bool     `json:"on_ground"`
	OriginCountry string   `json:"origin_country,omitempty"`
}

// CallsignOrEmpty returns the callsign, or "" when absent
func (s *AircraftState) CallsignOrEmpty() string {
	if s.Callsign == nil {
		return ""
	}
	return *s.Callsign
}

// HasPosition reports whether both coordinates are known
func (s *AircraftState) HasPosition() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Performer is a roster entry matched against live traffic
type Performer struct {
	ID            string   `json:"id" yaml:"id" validate:"required"`
	Name          string   `json:"name" yaml:"name" validate:"required"`
	Type          string   `json:"type" yaml:"type"`
	Role          *string  `json:"role,omitempty" yaml:"role,omitempty"`
	Image         *string  `json:"image,omitempty" yaml:"image,omitempty"`
	Hex           []string `json:"hex" yaml:"hex" validate:"required"`
	CallsignRegex []string `json:"callsign_regex" yaml:"callsign_regex" validate:"required"`
}

// Override holds user-added rules for one performer
type Override struct {
	Hex           []string `json:"hex"`
	CallsignRegex []string `json:"callsign_regex"`
}

// Overrides maps performer id to its user-added rules
type Overrides map[string]Override

// Clone returns a deep copy
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for id, ov := range o {
		out[id] = Override{
			Hex:           append([]string(nil), ov.Hex...),
			CallsignRegex: append([]string(nil), ov.CallsignRegex...),
		}
	}
	return out
}

// PresenceEntry is the per-cycle status of one performer
type PresenceEntry struct {
	Online   bool            `json:"online"`
	Matches  []AircraftState `json:"matches"`
	LastSeen *time.Time      `json:"last_seen"`
}

// Position is a latitude/longitude pair
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MarkerRecord is the tracked visual marker for one aircraft
type MarkerRecord struct {
	ICAO24      string        `json:"icao24"`
	Position    Position      `json:"position"`
	Heading     *float64      `json:"heading"`
	Highlighted bool          `json:"highlighted"`
	LastSeenAt  time.Time     `json:"last_seen_at"`
	State       AircraftState `json:"state"`
}

// PresenceUpdate is published to UI consumers after every cycle
type PresenceUpdate struct {
	SessionID string              `json:"session_id"`
	Timestamp time.Time           `json:"timestamp"`
	Online    []string            `json:"online"`
	Entries   map[string]Presence `json:"entries"`
	Unmatched []string            `json:"unmatched"`
}

// Presence is the wire form of a PresenceEntry
type Presence struct {
	Online   bool       `json:"online"`
	Contacts int        `json:"contacts"`
	LastSeen *time.Time `json:"last_seen"`
}

// MarkerEvent is published for every marker add, update or removal
type MarkerEvent struct {
	SessionID string        `json:"session_id"`
	Action    string        `json:"action"`
	ICAO24    string        `json:"icao24"`
	Marker    *MarkerRecord `json:"marker,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// PollStats is a point-in-time summary of the poller counters
type PollStats struct {
	Time             time.Time     `json:"time"`
	SessionID        string        `json:"session_id"`
	Provider         string        `json:"provider"`
	Polls            uint64        `json:"polls"`
	Failures         uint64        `json:"failures"`
	StatesSeen       uint64        `json:"states_seen"`
	MatchedStates    uint64        `json:"matched_states"`
	UnmatchedStates  uint64        `json:"unmatched_states"`
	OnlinePerformers uint64        `json:"online_performers"`
	ActiveMarkers    uint64        `json:"active_markers"`
	OnlineIDs        []string      `json:"online_ids"`
	LastLatency      time.Duration `json:"last_latency"`
	Uptime           time.Duration `json:"uptime"`
}
