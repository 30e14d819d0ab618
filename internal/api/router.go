// Package api exposes the tracker state over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/poller"
	"github.com/saviobatista/airshow-tracker/internal/session"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

// Tracker is the session surface served by the API
type Tracker interface {
	ID() string
	Cards() []session.Card
	Markers() []types.MarkerRecord
	ExportOverrides() (string, error)
	SetOverride(ctx context.Context, id string, ov types.Override) error
	DeleteOverride(ctx context.Context, id string) error
	ExportUnmatched() string
	ShowAllTraffic() bool
	SetShowAllTraffic(on bool)
	Inject(states []types.AircraftState) session.Summary
	LastCycle() time.Time
}

// StatusSource reports the poll loop status
type StatusSource interface {
	Status() poller.Status
}

// StatsSource reports the poll counters
type StatsSource interface {
	Snapshot() types.PollStats
}

// UptimeSource reports per-performer presence history
type UptimeSource interface {
	PerformerUptime(since time.Time) (map[string]int64, error)
}

// HistorySource returns persisted poll counters
type HistorySource interface {
	GetPollStats(start, end time.Time) ([]*types.PollStats, error)
}

// Deps holds the collaborators of the router. Status, Stats, Uptime and
// History may be nil. Notices are one-line startup warnings shown with the
// health view.
type Deps struct {
	Tracker Tracker
	Status  StatusSource
	Stats   StatsSource
	Uptime  UptimeSource
	History HistorySource
	Notices []string
	Logger  zerolog.Logger
}

// NewRouter creates and configures a new router with all API endpoints
func NewRouter(d Deps) *mux.Router {
	h := &handlers{Deps: d}

	// Routes sit on the root router so a method mismatch answers 405.
	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/api/health", h.health).Methods("GET")

	// Roster and map
	r.HandleFunc("/api/roster", h.roster).Methods("GET")
	r.HandleFunc("/api/markers", h.markers).Methods("GET")

	// Persisted statistics
	r.HandleFunc("/api/uptime", h.uptime).Methods("GET")
	r.HandleFunc("/api/stats/history", h.statsHistory).Methods("GET")

	// Overrides
	r.HandleFunc("/api/overrides", h.exportOverrides).Methods("GET")
	r.HandleFunc("/api/overrides/{id}", h.putOverride).Methods("PUT")
	r.HandleFunc("/api/overrides/{id}", h.deleteOverride).Methods("DELETE")

	// Diagnostics
	r.HandleFunc("/api/unmatched", h.unmatched).Methods("GET")
	r.HandleFunc("/api/traffic/show-all", h.getShowAll).Methods("GET")
	r.HandleFunc("/api/traffic/show-all", h.putShowAll).Methods("PUT")
	r.HandleFunc("/api/debug/inject", h.inject).Methods("POST")

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
