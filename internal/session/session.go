// Package session owns the tracker state and serializes every entry point
// (poll cycles, debug injection, override edits, UI reads) behind one mutex.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/markers"
	"github.com/saviobatista/airshow-tracker/internal/matcher"
	"github.com/saviobatista/airshow-tracker/internal/overrides"
	"github.com/saviobatista/airshow-tracker/internal/presence"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

// ErrUnknownPerformer is returned when an override names a performer not in the roster
var ErrUnknownPerformer = errors.New("unknown performer")

// Notifier publishes presence updates to UI consumers
type Notifier interface {
	PublishPresence(update *types.PresenceUpdate) error
}

// CycleRecorder counts processed snapshots
type CycleRecorder interface {
	RecordCycle(states, matched int, online []string, markers int)
}

// Config holds the collaborators of a Session
type Config struct {
	ID             string
	Roster         []types.Performer
	Overrides      types.Overrides
	Store          overrides.Store
	Renderer       markers.Renderer
	Notifier       Notifier
	Stats          CycleRecorder
	StaleAfter     time.Duration
	ShowAllTraffic bool
	Clock          func() time.Time
	Logger         zerolog.Logger
}

// Summary describes one processed cycle
type Summary struct {
	At        time.Time `json:"at"`
	States    int       `json:"states"`
	Matched   int       `json:"matched"`
	Online    []string  `json:"online"`
	Unmatched []string  `json:"unmatched"`
	Markers   int       `json:"markers"`
	Removed   []string  `json:"removed"`
}

// Session is the single owner of roster, overrides, presence and markers
type Session struct {
	mu sync.Mutex
	// renderMu keeps renderer batches in cycle order once mu is released
	renderMu sync.Mutex

	id        string
	roster    []types.Performer
	known     map[string]bool
	overrides types.Overrides
	store     overrides.Store
	rules     *matcher.Rules
	tracker   *presence.Tracker
	markers   *markers.Manager
	showAll   bool
	unmatched []string
	lastCycle time.Time

	notifier   Notifier
	stats      CycleRecorder
	now        func() time.Time
	staleAfter time.Duration
	log        zerolog.Logger
}

// New creates a session with every performer offline
func New(cfg Config) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = markers.DefaultMaxAge
	}
	if cfg.Overrides == nil {
		cfg.Overrides = types.Overrides{}
	}

	roster := append([]types.Performer(nil), cfg.Roster...)
	known := make(map[string]bool, len(roster))
	for _, p := range roster {
		known[p.ID] = true
	}

	return &Session{
		id:         cfg.ID,
		roster:     roster,
		known:      known,
		overrides:  cfg.Overrides.Clone(),
		store:      cfg.Store,
		tracker:    presence.NewTracker(roster),
		markers:    markers.New(cfg.Renderer, markers.WithClock(cfg.Clock), markers.WithLogger(cfg.Logger)),
		showAll:    cfg.ShowAllTraffic,
		unmatched:  []string{},
		notifier:   cfg.Notifier,
		stats:      cfg.Stats,
		now:        cfg.Clock,
		staleAfter: cfg.StaleAfter,
		log:        cfg.Logger,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// compiled returns the rules for the current roster and overrides, compiling
// them at most once between edits. Caller holds s.mu.
func (s *Session) compiled() *matcher.Rules {
	if s.rules != nil {
		return s.rules
	}
	s.rules = matcher.Compile(s.roster, s.overrides)
	for _, r := range s.rules.All() {
		for _, p := range r.Invalid() {
			s.log.Warn().
				Str("performer", r.PerformerID).
				Str("pattern", p.Raw).
				Err(p.Err).
				Msg("Invalid callsign pattern; it will never match")
		}
	}
	return s.rules
}

// ProcessCycle matches one snapshot, refreshes presence and markers, purges
// stale markers once and notifies consumers.
func (s *Session) ProcessCycle(states []types.AircraftState) Summary {
	s.mu.Lock()

	rules := s.compiled()
	now := s.now()
	cycle := s.tracker.Process(states, s.roster, rules, now)

	matched := 0
	for _, sighting := range cycle.Sightings {
		if sighting.Matched() {
			matched++
			s.markers.Upsert(sighting.State, true)
		} else if s.showAll {
			s.markers.Upsert(sighting.State, false)
		}
	}
	removed := s.markers.PurgeStale(s.staleAfter)
	if removed == nil {
		removed = []string{}
	}

	s.unmatched = cycle.UnmatchedLines()
	s.lastCycle = now

	summary := Summary{
		At:        now,
		States:    len(states),
		Matched:   matched,
		Online:    s.onlineIDs(),
		Unmatched: append([]string{}, s.unmatched...),
		Markers:   s.markers.Len(),
		Removed:   removed,
	}
	update := s.presenceUpdate(now)
	ops := s.markers.Pending()
	s.renderMu.Lock()
	s.mu.Unlock()

	s.markers.Render(ops)
	s.renderMu.Unlock()

	if s.stats != nil {
		s.stats.RecordCycle(summary.States, summary.Matched, summary.Online, summary.Markers)
	}
	if s.notifier != nil {
		if err := s.notifier.PublishPresence(update); err != nil {
			s.log.Warn().Err(err).Msg("Failed to publish presence update")
		}
	}
	return summary
}

// Inject runs synthetic states through the normal cycle path
func (s *Session) Inject(states []types.AircraftState) Summary {
	s.log.Debug().Int("states", len(states)).Msg("Injecting states")
	return s.ProcessCycle(states)
}

// onlineIDs returns online performer ids in roster order. Caller holds s.mu.
func (s *Session) onlineIDs() []string {
	ids := []string{}
	for _, p := range s.roster {
		if e, ok := s.tracker.Entry(p.ID); ok && e.Online {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// presenceUpdate builds the wire form of the current presence. Caller holds s.mu.
func (s *Session) presenceUpdate(now time.Time) *types.PresenceUpdate {
	entries := s.tracker.Entries()
	wire := make(map[string]types.Presence, len(entries))
	for id, e := range entries {
		wire[id] = types.Presence{Online: e.Online, Contacts: len(e.Matches), LastSeen: e.LastSeen}
	}
	return &types.PresenceUpdate{
		SessionID: s.id,
		Timestamp: now,
		Online:    s.onlineIDs(),
		Entries:   wire,
		Unmatched: append([]string{}, s.unmatched...),
	}
}

// SetOverride replaces the user rules for one performer and persists the set
func (s *Session) SetOverride(ctx context.Context, id string, ov types.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.known[id] {
		return fmt.Errorf("%w: %s", ErrUnknownPerformer, id)
	}
	s.overrides[id] = overrides.Normalize(ov)
	s.rules = nil
	return s.persist(ctx)
}

// DeleteOverride drops the user rules for one performer and persists the set
func (s *Session) DeleteOverride(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.known[id] {
		return fmt.Errorf("%w: %s", ErrUnknownPerformer, id)
	}
	delete(s.overrides, id)
	s.rules = nil
	return s.persist(ctx)
}

// persist writes the override set. Caller holds s.mu.
func (s *Session) persist(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.overrides.Clone()); err != nil {
		s.log.Warn().Err(err).Msg("Failed to persist overrides")
		return fmt.Errorf("failed to persist overrides: %w", err)
	}
	return nil
}

// Overrides returns a copy of the override set
func (s *Session) Overrides() types.Overrides {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrides.Clone()
}

// ExportOverrides renders the override set as indented JSON
func (s *Session) ExportOverrides() (string, error) {
	return overrides.Export(s.Overrides())
}

// ExportUnmatched renders the last cycle's unmatched states, one per line
func (s *Session) ExportUnmatched() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.unmatched, "\n")
}

// SetShowAllTraffic toggles drawing of unmatched traffic from the next cycle on
func (s *Session) SetShowAllTraffic(on bool) {
	s.mu.Lock()
	s.showAll = on
	s.mu.Unlock()
	s.log.Info().Bool("show_all_traffic", on).Msg("Traffic filter changed")
}

// ShowAllTraffic reports whether unmatched traffic is drawn
func (s *Session) ShowAllTraffic() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showAll
}

// Roster returns a copy of the roster
func (s *Session) Roster() []types.Performer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Performer(nil), s.roster...)
}

// Entries returns a copy of every presence entry
func (s *Session) Entries() map[string]types.PresenceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Entries()
}

// Rows returns the roster in display order
func (s *Session) Rows() []presence.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return presence.Rows(s.roster, s.tracker.Entries())
}

// Markers returns copies of all live markers
func (s *Session) Markers() []types.MarkerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markers.Snapshot()
}

// LastCycle returns when the last snapshot was processed
func (s *Session) LastCycle() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCycle
}

// Card is the roster view of one performer
type Card struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Role     *string          `json:"role,omitempty"`
	Image    *string          `json:"image,omitempty"`
	Online   bool             `json:"online"`
	Contacts int              `json:"contacts"`
	LastSeen *time.Time       `json:"last_seen"`
	Latest   *markers.Display `json:"latest,omitempty"`
}

// Cards returns the roster cards, online performers first
func (s *Session) Cards() []Card {
	rows := s.Rows()
	cards := make([]Card, 0, len(rows))
	for _, row := range rows {
		c := Card{
			ID:       row.Performer.ID,
			Name:     row.Performer.Name,
			Type:     row.Performer.Type,
			Role:     row.Performer.Role,
			Image:    row.Performer.Image,
			Online:   row.Entry.Online,
			Contacts: len(row.Entry.Matches),
			LastSeen: row.Entry.LastSeen,
		}
		if len(row.Entry.Matches) > 0 {
			d := markers.Describe(row.Entry.Matches[0])
			c.Latest = &d
		}
		cards = append(cards, c)
	}
	return cards
}
