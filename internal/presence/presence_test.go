package presence

import (
	"reflect"
	"testing"
	"time"

	"github.com/saviobatista/airshow-tracker/internal/matcher"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

func strPtr(s string) *string { return &s }

var testRoster = []types.Performer{
	{ID: "p1", Name: "Alpha", Hex: []string{"abcd12"}, CallsignRegex: []string{}},
	{ID: "p2", Name: "Bravo", Hex: []string{}, CallsignRegex: []string{"BA"}},
	{ID: "p3", Name: "Charlie", Hex: []string{"cccccc"}, CallsignRegex: []string{}},
}

func process(t *testing.T, tr *Tracker, states []types.AircraftState, now time.Time) *Cycle {
	t.Helper()
	return tr.Process(states, testRoster, matcher.Compile(testRoster, nil), now)
}

func TestProcess_MatchesAndUnmatched(t *testing.T) {
	tr := NewTracker(testRoster)
	now := time.Date(2026, 8, 22, 14, 0, 0, 0, time.UTC)

	states := []types.AircraftState{
		{ICAO24: "abcd12", Callsign: strPtr("BA6")},
		{ICAO24: "999999", Callsign: strPtr("DAL12")},
		{ICAO24: "777777", Callsign: strPtr("BA7")},
		{ICAO24: "888888"},
	}

	cycle := process(t, tr, states, now)

	p1, _ := tr.Entry("p1")
	if !p1.Online || len(p1.Matches) != 1 {
		t.Errorf("Expected p1 online with 1 match, got %+v", p1)
	}
	if p1.LastSeen == nil || !p1.LastSeen.Equal(now) {
		t.Errorf("Expected p1 lastSeen = %v, got %v", now, p1.LastSeen)
	}

	p2, _ := tr.Entry("p2")
	if !p2.Online || len(p2.Matches) != 2 {
		t.Fatalf("Expected p2 online with 2 matches, got %+v", p2)
	}
	if p2.Matches[0].ICAO24 != "abcd12" || p2.Matches[1].ICAO24 != "777777" {
		t.Errorf("Expected matches in arrival order, got %s, %s", p2.Matches[0].ICAO24, p2.Matches[1].ICAO24)
	}

	p3, _ := tr.Entry("p3")
	if p3.Online || len(p3.Matches) != 0 || p3.LastSeen != nil {
		t.Errorf("Expected p3 offline, got %+v", p3)
	}

	expected := []string{"999999 DAL12", "888888"}
	if got := cycle.UnmatchedLines(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected unmatched %v, got %v", expected, got)
	}

	if len(cycle.Sightings) != 4 {
		t.Fatalf("Expected 4 sightings, got %d", len(cycle.Sightings))
	}
	if !reflect.DeepEqual(cycle.Sightings[0].Performers, []string{"p1", "p2"}) {
		t.Errorf("Expected first sighting to match p1 and p2, got %v", cycle.Sightings[0].Performers)
	}
	if cycle.Sightings[1].Matched() {
		t.Error("Expected second sighting to be unmatched")
	}
	if cycle.Online() != 2 {
		t.Errorf("Expected 2 performers online, got %d", cycle.Online())
	}
}

func TestProcess_NoCarryOver(t *testing.T) {
	tr := NewTracker(testRoster)
	now := time.Now()

	process(t, tr, []types.AircraftState{{ICAO24: "abcd12"}, {ICAO24: "cccccc"}}, now)
	process(t, tr, []types.AircraftState{{ICAO24: "cccccc"}}, now.Add(time.Second))

	p1, _ := tr.Entry("p1")
	if p1.Online || len(p1.Matches) != 0 || p1.LastSeen != nil {
		t.Errorf("Expected p1 reset after a cycle without matches, got %+v", p1)
	}

	p3, _ := tr.Entry("p3")
	if !p3.Online || len(p3.Matches) != 1 {
		t.Errorf("Expected p3 to carry exactly this cycle's match, got %+v", p3)
	}
}

func TestProcess_EmptySnapshot(t *testing.T) {
	tr := NewTracker(testRoster)
	process(t, tr, []types.AircraftState{{ICAO24: "abcd12"}}, time.Now())

	cycle := process(t, tr, nil, time.Now())

	for id, e := range tr.Entries() {
		if e.Online || len(e.Matches) != 0 {
			t.Errorf("Expected %s offline with no matches, got %+v", id, e)
		}
		if e.Matches == nil {
			t.Errorf("Expected %s matches to be an empty list, not nil", id)
		}
	}
	if len(cycle.Unmatched) != 0 {
		t.Errorf("Expected no unmatched states, got %d", len(cycle.Unmatched))
	}
}

func TestEntries_ReturnsCopies(t *testing.T) {
	tr := NewTracker(testRoster)
	process(t, tr, []types.AircraftState{{ICAO24: "abcd12"}}, time.Now())

	entries := tr.Entries()
	e := entries["p1"]
	e.Matches[0].ICAO24 = "mutated"

	p1, _ := tr.Entry("p1")
	if p1.Matches[0].ICAO24 != "abcd12" {
		t.Error("Entries() leaked internal state")
	}
}

func TestRows_Ordering(t *testing.T) {
	roster := []types.Performer{
		{ID: "z", Name: "Zulu"},
		{ID: "a2", Name: "Alpha"},
		{ID: "m", Name: "Mike"},
		{ID: "a1", Name: "Alpha"},
	}
	entries := map[string]types.PresenceEntry{
		"m": {Online: true},
		"z": {Online: true},
	}

	rows := Rows(roster, entries)

	var got []string
	for _, r := range rows {
		got = append(got, r.Performer.ID)
	}
	expected := []string{"m", "z", "a1", "a2"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected order %v, got %v", expected, got)
	}
}

func TestFormatUnmatched(t *testing.T) {
	if got := FormatUnmatched(types.AircraftState{ICAO24: "abc123", Callsign: strPtr(" N12 ")}); got != "abc123 N12" {
		t.Errorf("Expected 'abc123 N12', got %q", got)
	}
	if got := FormatUnmatched(types.AircraftState{ICAO24: "abc123"}); got != "abc123" {
		t.Errorf("Expected 'abc123', got %q", got)
	}
}
