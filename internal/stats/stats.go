package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

// Persister stores statistics snapshots
type Persister interface {
	StorePollStats(stats *types.PollStats) error
}

// Stats tracks polling and matching statistics
type Stats struct {
	// Fetch counts
	Polls    uint64
	Failures uint64

	// Cycle counts
	StatesSeen      uint64
	MatchedStates   uint64
	UnmatchedStates uint64

	// Current gauges
	OnlinePerformers uint64
	ActiveMarkers    uint64

	sessionID   string
	provider    string
	onlineIDs   []string
	lastLatency time.Duration
	startedAt   time.Time

	db Persister

	mu sync.RWMutex
}

// New creates a new Stats instance
func New(sessionID string) *Stats {
	return &Stats{
		sessionID: sessionID,
		startedAt: time.Now(),
	}
}

// SetDB sets the persistence target
func (s *Stats) SetDB(db Persister) {
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
}

// RecordFetch counts one fetch attempt
func (s *Stats) RecordFetch(provider string, latency time.Duration, err error) {
	if err != nil {
		atomic.AddUint64(&s.Failures, 1)
		return
	}
	atomic.AddUint64(&s.Polls, 1)

	s.mu.Lock()
	s.provider = provider
	s.lastLatency = latency
	s.mu.Unlock()
}

// RecordCycle counts one processed snapshot and updates the gauges
func (s *Stats) RecordCycle(states, matched int, online []string, markers int) {
	atomic.AddUint64(&s.StatesSeen, uint64(states))
	atomic.AddUint64(&s.MatchedStates, uint64(matched))
	atomic.AddUint64(&s.UnmatchedStates, uint64(states-matched))
	atomic.StoreUint64(&s.OnlinePerformers, uint64(len(online)))
	atomic.StoreUint64(&s.ActiveMarkers, uint64(markers))

	s.mu.Lock()
	s.onlineIDs = append(s.onlineIDs[:0], online...)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current statistics
func (s *Stats) Snapshot() types.PollStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return types.PollStats{
		Time:             time.Now(),
		SessionID:        s.sessionID,
		Provider:         s.provider,
		Polls:            atomic.LoadUint64(&s.Polls),
		Failures:         atomic.LoadUint64(&s.Failures),
		StatesSeen:       atomic.LoadUint64(&s.StatesSeen),
		MatchedStates:    atomic.LoadUint64(&s.MatchedStates),
		UnmatchedStates:  atomic.LoadUint64(&s.UnmatchedStates),
		OnlinePerformers: atomic.LoadUint64(&s.OnlinePerformers),
		ActiveMarkers:    atomic.LoadUint64(&s.ActiveMarkers),
		OnlineIDs:        append([]string{}, s.onlineIDs...),
		LastLatency:      s.lastLatency,
		Uptime:           time.Since(s.startedAt),
	}
}

// Persist stores the current statistics
func (s *Stats) Persist() error {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return fmt.Errorf("database client not set")
	}

	snap := s.Snapshot()
	return db.StorePollStats(&snap)
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"Polls: %d\n"+
			"Failures: %d\n"+
			"States Seen: %d\n"+
			"Matched States: %d\n"+
			"Unmatched States: %d\n"+
			"Online Performers: %d\n"+
			"Active Markers: %d\n"+
			"Last Latency: %s\n"+
			"Uptime: %s",
		snap.Polls,
		snap.Failures,
		snap.StatesSeen,
		snap.MatchedStates,
		snap.UnmatchedStates,
		snap.OnlinePerformers,
		snap.ActiveMarkers,
		snap.LastLatency,
		snap.Uptime.Truncate(time.Second),
	)
}

// StartPersistence persists statistics every interval until ctx is done
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			if err := s.Persist(); err != nil {
				log.Warn().Err(err).Msg("Failed to persist final statistics")
			}
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				log.Warn().Err(err).Msg("Failed to persist statistics")
			}
		}
	}
}
