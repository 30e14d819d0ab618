package stats

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

type mockPersister struct {
	mu     sync.Mutex
	stored []types.PollStats
	err    error
}

func (m *mockPersister) StorePollStats(stats *types.PollStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, *stats)
	return nil
}

func (m *mockPersister) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func TestNew(t *testing.T) {
	stats := New("session-1")

	if stats == nil {
		t.Fatal("New() returned nil")
	}
	snap := stats.Snapshot()
	if snap.SessionID != "session-1" {
		t.Errorf("Expected session id session-1, got %s", snap.SessionID)
	}
	if snap.Polls != 0 || snap.Failures != 0 {
		t.Errorf("Expected zero counters, got %+v", snap)
	}
	if snap.OnlineIDs == nil {
		t.Error("Expected non-nil online ids")
	}
}

func TestRecordFetch(t *testing.T) {
	stats := New("s")

	stats.RecordFetch("OpenSky", 120*time.Millisecond, nil)
	stats.RecordFetch("OpenSky", 80*time.Millisecond, nil)
	stats.RecordFetch("OpenSky", 0, errors.New("HTTP 429"))

	snap := stats.Snapshot()
	if snap.Polls != 2 {
		t.Errorf("Expected 2 polls, got %d", snap.Polls)
	}
	if snap.Failures != 1 {
		t.Errorf("Expected 1 failure, got %d", snap.Failures)
	}
	if snap.LastLatency != 80*time.Millisecond {
		t.Errorf("Expected last latency 80ms, got %s", snap.LastLatency)
	}
	if snap.Provider != "OpenSky" {
		t.Errorf("Expected provider OpenSky, got %s", snap.Provider)
	}
}

func TestRecordCycle(t *testing.T) {
	stats := New("s")

	stats.RecordCycle(5, 2, []string{"p1", "p2"}, 4)
	stats.RecordCycle(3, 0, nil, 1)

	snap := stats.Snapshot()
	if snap.StatesSeen != 8 || snap.MatchedStates != 2 || snap.UnmatchedStates != 6 {
		t.Errorf("Unexpected cycle counters: %+v", snap)
	}
	if snap.OnlinePerformers != 0 || len(snap.OnlineIDs) != 0 {
		t.Errorf("Expected gauges from last cycle only, got %d online %v", snap.OnlinePerformers, snap.OnlineIDs)
	}
	if snap.ActiveMarkers != 1 {
		t.Errorf("Expected 1 active marker, got %d", snap.ActiveMarkers)
	}
}

func TestSnapshot_CopiesOnlineIDs(t *testing.T) {
	stats := New("s")
	online := []string{"p1"}
	stats.RecordCycle(1, 1, online, 1)
	online[0] = "changed"

	snap := stats.Snapshot()
	snap.OnlineIDs[0] = "mutated"

	if got := stats.Snapshot().OnlineIDs[0]; got != "p1" {
		t.Errorf("Expected p1, got %s", got)
	}
}

func TestPersist(t *testing.T) {
	stats := New("s")

	if err := stats.Persist(); err == nil {
		t.Error("Expected error without database client")
	}

	db := &mockPersister{}
	stats.SetDB(db)
	stats.RecordFetch("OpenSky", time.Millisecond, nil)
	if err := stats.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}
	if db.count() != 1 || db.stored[0].Polls != 1 {
		t.Errorf("Unexpected stored stats: %+v", db.stored)
	}

	db.err = errors.New("connection reset")
	if err := stats.Persist(); err == nil {
		t.Error("Expected persistence error to propagate")
	}
}

func TestString(t *testing.T) {
	stats := New("s")
	stats.RecordFetch("OpenSky", 250*time.Millisecond, nil)
	stats.RecordCycle(3, 1, []string{"p1"}, 2)

	out := stats.String()
	for _, want := range []string{"Polls: 1", "States Seen: 3", "Unmatched States: 2", "Active Markers: 2", "Last Latency: 250ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestStartPersistence(t *testing.T) {
	stats := New("s")
	db := &mockPersister{}
	stats.SetDB(db)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		stats.StartPersistence(ctx, 10*time.Millisecond, zerolog.Nop())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for db.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("StartPersistence did not stop after cancel")
	}

	if db.count() < 3 {
		t.Errorf("Expected periodic and final persistence, got %d writes", db.count())
	}
}

func TestConcurrentRecording(t *testing.T) {
	stats := New("s")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats.RecordFetch("OpenSky", time.Millisecond, nil)
			stats.RecordCycle(2, 1, []string{"p1"}, 1)
			_ = stats.Snapshot()
		}()
	}
	wg.Wait()

	snap := stats.Snapshot()
	if snap.Polls != 50 || snap.StatesSeen != 100 {
		t.Errorf("Expected 50 polls and 100 states, got %d and %d", snap.Polls, snap.StatesSeen)
	}
}
