package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/saviobatista/airshow-tracker/internal/poller"
	"github.com/saviobatista/airshow-tracker/internal/session"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

const maxBody = 1 << 20

type handlers struct {
	Deps
}

// HealthResponse is the body of GET /api/health
type HealthResponse struct {
	SessionID      string           `json:"session_id"`
	Line           string           `json:"line"`
	Status         *poller.Status   `json:"status,omitempty"`
	Stats          *types.PollStats `json:"stats,omitempty"`
	ShowAllTraffic bool             `json:"show_all_traffic"`
	LastCycle      *time.Time       `json:"last_cycle,omitempty"`
	Notices        []string         `json:"notices,omitempty"`
}

type showAllBody struct {
	Enabled bool `json:"enabled"`
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		SessionID:      h.Tracker.ID(),
		ShowAllTraffic: h.Tracker.ShowAllTraffic(),
		Notices:        h.Notices,
	}
	if last := h.Tracker.LastCycle(); !last.IsZero() {
		resp.LastCycle = &last
	}
	if h.Status != nil {
		st := h.Status.Status()
		resp.Status = &st
		resp.Line = st.Line()
	}
	if h.Stats != nil {
		snap := h.Stats.Snapshot()
		resp.Stats = &snap
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) roster(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Tracker.Cards())
}

func (h *handlers) markers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Tracker.Markers())
}

// window reads the ?window= duration, defaulting to 24h
func window(r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("window")
	if v == "" {
		return 24 * time.Hour, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func (h *handlers) uptime(w http.ResponseWriter, r *http.Request) {
	if h.Uptime == nil {
		h.writeError(w, http.StatusServiceUnavailable, "statistics database not configured")
		return
	}
	d, ok := window(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid window")
		return
	}

	uptime, err := h.Uptime.PerformerUptime(time.Now().Add(-d))
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to query performer uptime")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, uptime)
}

func (h *handlers) statsHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		h.writeError(w, http.StatusServiceUnavailable, "statistics database not configured")
		return
	}
	d, ok := window(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid window")
		return
	}

	end := time.Now()
	history, err := h.History.GetPollStats(end.Add(-d), end)
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to query poll statistics")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if history == nil {
		history = []*types.PollStats{}
	}
	h.writeJSON(w, http.StatusOK, history)
}

func (h *handlers) exportOverrides(w http.ResponseWriter, r *http.Request) {
	out, err := h.Tracker.ExportOverrides()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, out)
}

func (h *handlers) putOverride(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var ov types.Override
	if err := decode(r, &ov); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid override body")
		return
	}

	h.overrideResult(w, id, h.Tracker.SetOverride(r.Context(), id, ov))
}

func (h *handlers) deleteOverride(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.overrideResult(w, id, h.Tracker.DeleteOverride(r.Context(), id))
}

func (h *handlers) overrideResult(w http.ResponseWriter, id string, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrUnknownPerformer):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		// The edit is live in memory; only persistence failed.
		h.Logger.Error().Err(err).Str("performer", id).Msg("Override not persisted")
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handlers) unmatched(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.Tracker.ExportUnmatched())
}

func (h *handlers) getShowAll(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, showAllBody{Enabled: h.Tracker.ShowAllTraffic()})
}

func (h *handlers) putShowAll(w http.ResponseWriter, r *http.Request) {
	var body showAllBody
	if err := decode(r, &body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.Tracker.SetShowAllTraffic(body.Enabled)
	h.writeJSON(w, http.StatusOK, body)
}

func (h *handlers) inject(w http.ResponseWriter, r *http.Request) {
	var states []types.AircraftState
	if err := decode(r, &states); err != nil {
		h.writeError(w, http.StatusBadRequest, "body must be an array of aircraft states")
		return
	}
	for i := range states {
		states[i].ICAO24 = strings.ToLower(strings.TrimSpace(states[i].ICAO24))
		if states[i].ICAO24 == "" {
			h.writeError(w, http.StatusBadRequest, "every state needs an icao24")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, h.Tracker.Inject(states))
}
