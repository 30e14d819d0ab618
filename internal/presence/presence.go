// Package presence tracks which performers were seen in the latest snapshot
// and keeps their matching states for the roster cards.
package presence

import (
	"sort"
	"strings"
	"time"

	"github.com/saviobatista/airshow-tracker/internal/matcher"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

// Sighting is one state of a cycle together with the performers it matched
type Sighting struct {
	State      types.AircraftState
	Performers []string
}

// Matched reports whether the state matched at least one performer
func (s Sighting) Matched() bool {
	return len(s.Performers) > 0
}

// Cycle is the result of processing one snapshot
type Cycle struct {
	At        time.Time
	Entries   map[string]*types.PresenceEntry
	Sightings []Sighting
	Unmatched []types.AircraftState
}

// UnmatchedLines formats the unmatched states as "<icao24> <callsign>"
func (c *Cycle) UnmatchedLines() []string {
	lines := make([]string, 0, len(c.Unmatched))
	for _, st := range c.Unmatched {
		lines = append(lines, FormatUnmatched(st))
	}
	return lines
}

// Online returns the number of performers seen this cycle
func (c *Cycle) Online() int {
	n := 0
	for _, e := range c.Entries {
		if e.Online {
			n++
		}
	}
	return n
}

// FormatUnmatched renders a state as a diagnostic export line
func FormatUnmatched(st types.AircraftState) string {
	callsign := strings.TrimSpace(st.CallsignOrEmpty())
	if callsign == "" {
		return st.ICAO24
	}
	return st.ICAO24 + " " + callsign
}

// Tracker holds one presence entry per performer id
type Tracker struct {
	entries map[string]*types.PresenceEntry
}

// NewTracker creates a tracker with every performer offline
func NewTracker(roster []types.Performer) *Tracker {
	t := &Tracker{}
	t.reset(roster)
	return t
}

func (t *Tracker) reset(roster []types.Performer) {
	t.entries = make(map[string]*types.PresenceEntry, len(roster))
	for _, perf := range roster {
		t.entries[perf.ID] = &types.PresenceEntry{Matches: []types.AircraftState{}}
	}
}

// Process rebuilds every entry from this snapshot alone. Entries are reset
// before any state is examined, so nothing survives from the previous cycle.
func (t *Tracker) Process(states []types.AircraftState, roster []types.Performer, rules *matcher.Rules, now time.Time) *Cycle {
	t.reset(roster)

	cycle := &Cycle{
		At:        now,
		Entries:   t.entries,
		Sightings: make([]Sighting, 0, len(states)),
	}

	for _, st := range states {
		ids := rules.Performers(st)
		for _, id := range ids {
			entry, ok := t.entries[id]
			if !ok {
				continue
			}
			seen := now
			entry.Online = true
			entry.Matches = append(entry.Matches, st)
			entry.LastSeen = &seen
		}
		cycle.Sightings = append(cycle.Sightings, Sighting{State: st, Performers: ids})
		if len(ids) == 0 {
			cycle.Unmatched = append(cycle.Unmatched, st)
		}
	}

	return cycle
}

// Entry returns a copy of a performer's entry
func (t *Tracker) Entry(id string) (types.PresenceEntry, bool) {
	e, ok := t.entries[id]
	if !ok {
		return types.PresenceEntry{}, false
	}
	return copyEntry(e), true
}

// Entries returns a copy of every entry
func (t *Tracker) Entries() map[string]types.PresenceEntry {
	out := make(map[string]types.PresenceEntry, len(t.entries))
	for id, e := range t.entries {
		out[id] = copyEntry(e)
	}
	return out
}

func copyEntry(e *types.PresenceEntry) types.PresenceEntry {
	c := types.PresenceEntry{
		Online:  e.Online,
		Matches: append([]types.AircraftState{}, e.Matches...),
	}
	if e.LastSeen != nil {
		ls := *e.LastSeen
		c.LastSeen = &ls
	}
	return c
}

// Row is a performer paired with its presence, for UI projections
type Row struct {
	Performer types.Performer
	Entry     types.PresenceEntry
}

// Rows orders the roster for display: online first, then by name, then by id
func Rows(roster []types.Performer, entries map[string]types.PresenceEntry) []Row {
	rows := make([]Row, 0, len(roster))
	for _, perf := range roster {
		entry, ok := entries[perf.ID]
		if !ok {
			entry = types.PresenceEntry{Matches: []types.AircraftState{}}
		}
		rows = append(rows, Row{Performer: perf, Entry: entry})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Entry.Online != b.Entry.Online {
			return a.Entry.Online
		}
		if a.Performer.Name != b.Performer.Name {
			return a.Performer.Name < b.Performer.Name
		}
		return a.Performer.ID < b.Performer.ID
	})
	return rows
}
