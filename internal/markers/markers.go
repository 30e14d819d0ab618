// Package markers keeps one map marker per aircraft and tells the map layer
// when to add, move or remove it.
//
// Upsert and PurgeStale only change records and queue the renderer calls.
// The caller sends them with Render, usually after releasing its own lock.
package markers

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

// DefaultMaxAge is the staleness window after which an unrefreshed marker is removed
const DefaultMaxAge = 30 * time.Second

// Renderer is the map layer that draws markers
type Renderer interface {
	AddMarker(rec types.MarkerRecord) error
	UpdateMarker(rec types.MarkerRecord) error
	RemoveMarker(icao24 string) error
}

// OpKind is the renderer call an Op stands for
type OpKind int

const (
	OpAdd OpKind = iota
	OpUpdate
	OpRemove
)

// Op is a queued renderer call. Record is a copy taken when it was queued.
type Op struct {
	Kind   OpKind
	Record types.MarkerRecord
}

// Manager owns one MarkerRecord per icao24
type Manager struct {
	records  map[string]*types.MarkerRecord
	pending  []Op
	renderer Renderer
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger used for renderer failures
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// New creates a marker manager. renderer may be nil.
func New(renderer Renderer, opts ...Option) *Manager {
	m := &Manager{
		records:  make(map[string]*types.MarkerRecord),
		renderer: renderer,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Upsert creates the marker on first sighting or moves and restyles the
// existing one in place. States without a full position are ignored.
func (m *Manager) Upsert(state types.AircraftState, highlighted bool) bool {
	if !state.HasPosition() {
		return false
	}

	now := m.now()
	rec, exists := m.records[state.ICAO24]
	if !exists {
		rec = &types.MarkerRecord{ICAO24: state.ICAO24}
		m.records[state.ICAO24] = rec
	}
	rec.Position = types.Position{Latitude: *state.Latitude, Longitude: *state.Longitude}
	rec.Heading = state.Heading
	rec.Highlighted = highlighted
	rec.LastSeenAt = now
	rec.State = state

	kind := OpAdd
	if exists {
		kind = OpUpdate
	}
	m.queue(kind, *rec)
	return true
}

// PurgeStale removes every marker not refreshed within maxAge and returns
// the removed icao24 codes in sorted order.
func (m *Manager) PurgeStale(maxAge time.Duration) []string {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	now := m.now()
	var removed []string
	for icao, rec := range m.records {
		if now.Sub(rec.LastSeenAt) > maxAge {
			delete(m.records, icao)
			removed = append(removed, icao)
		}
	}
	sort.Strings(removed)

	for _, icao := range removed {
		m.queue(OpRemove, types.MarkerRecord{ICAO24: icao})
	}
	return removed
}

func (m *Manager) queue(kind OpKind, rec types.MarkerRecord) {
	if m.renderer == nil {
		return
	}
	m.pending = append(m.pending, Op{Kind: kind, Record: rec})
}

// Pending returns the queued renderer calls in order and clears the queue.
func (m *Manager) Pending() []Op {
	ops := m.pending
	m.pending = nil
	return ops
}

// Render sends ops to the renderer. It reads no marker state, so it may run
// without the lock that guards Upsert and PurgeStale. Calls for one batch must
// not interleave with another batch's calls.
func (m *Manager) Render(ops []Op) {
	if m.renderer == nil {
		return
	}
	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpAdd:
			err = m.renderer.AddMarker(op.Record)
		case OpUpdate:
			err = m.renderer.UpdateMarker(op.Record)
		case OpRemove:
			err = m.renderer.RemoveMarker(op.Record.ICAO24)
		}
		if err != nil {
			m.log.Warn().Err(err).Str("icao24", op.Record.ICAO24).Msg("Failed to render marker")
		}
	}
}

// Flush renders everything queued so far
func (m *Manager) Flush() {
	m.Render(m.Pending())
}

// Get returns a copy of the marker for icao24
func (m *Manager) Get(icao24 string) (types.MarkerRecord, bool) {
	rec, ok := m.records[icao24]
	if !ok {
		return types.MarkerRecord{}, false
	}
	return *rec, true
}

// Len returns the number of live markers
func (m *Manager) Len() int {
	return len(m.records)
}

// Snapshot returns copies of all markers sorted by icao24
func (m *Manager) Snapshot() []types.MarkerRecord {
	out := make([]types.MarkerRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ICAO24 < out[j].ICAO24 })
	return out
}

// Display holds the fields a popup or card shows for a state
type Display struct {
	Callsign     string   `json:"callsign"`
	AltitudeFeet *int     `json:"altitude_ft"`
	SpeedKnots   *int     `json:"speed_kt"`
	Heading      *float64 `json:"heading"`
}

// Describe derives display fields at render time
func Describe(state types.AircraftState) Display {
	d := Display{
		Callsign: state.CallsignOrEmpty(),
		Heading:  state.Heading,
	}
	if state.BaroAltitude != nil {
		ft := AltitudeFeet(*state.BaroAltitude)
		d.AltitudeFeet = &ft
	}
	if state.Velocity != nil {
		kt := SpeedKnots(*state.Velocity)
		d.SpeedKnots = &kt
	}
	return d
}

// AltitudeFeet converts metres to whole feet
func AltitudeFeet(metres float64) int {
	return int(math.Round(metres * 3.28084))
}

// SpeedKnots converts metres per second to whole knots
func SpeedKnots(mps float64) int {
	return int(math.Round(mps * 1.94384))
}
