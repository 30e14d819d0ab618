package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/overrides"
	"github.com/saviobatista/airshow-tracker/internal/poller"
	"github.com/saviobatista/airshow-tracker/internal/session"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

type fakeStatus struct {
	status poller.Status
}

func (f fakeStatus) Status() poller.Status { return f.status }

type fakeStats struct{}

func (fakeStats) Snapshot() types.PollStats {
	return types.PollStats{SessionID: "api-test", Polls: 7, Failures: 2}
}

type fakeUptime struct {
	uptime map[string]int64
	err    error
	since  time.Time
}

func (f *fakeUptime) PerformerUptime(since time.Time) (map[string]int64, error) {
	f.since = since
	return f.uptime, f.err
}

type fakeHistory struct {
	history    []*types.PollStats
	err        error
	start, end time.Time
}

func (f *fakeHistory) GetPollStats(start, end time.Time) ([]*types.PollStats, error) {
	f.start, f.end = start, end
	return f.history, f.err
}

func newTestSession(store overrides.Store) *session.Session {
	return session.New(session.Config{
		ID: "api-test",
		Roster: []types.Performer{
			{ID: "blue-angels", Name: "Blue Angels", Hex: []string{}, CallsignRegex: []string{"^BA[1-7]$"}},
			{ID: "fat-albert", Name: "Fat Albert", Hex: []string{}, CallsignRegex: []string{"BERT"}},
		},
		Store: store,
	})
}

func newTestRouter(t *testing.T, d Deps) http.Handler {
	t.Helper()
	if d.Tracker == nil {
		d.Tracker = newTestSession(&overrides.MemoryStore{})
	}
	d.Logger = zerolog.Nop()
	return NewRouter(d)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const injectBody = `[{"icao24":"ABCD12","callsign":"BA6","latitude":43.07,"longitude":-70.8,"baro_altitude":1000},
{"icao24":"c0ffee","callsign":"DAL123","latitude":43.1,"longitude":-70.7}]`

func TestHealth(t *testing.T) {
	status := poller.Status{State: poller.StateSuccess, Provider: "OpenSky", LastCount: 3, LastLatency: 120 * time.Millisecond}
	h := newTestRouter(t, Deps{Status: fakeStatus{status: status}, Stats: fakeStats{}, Notices: []string{"performers.json invalid (using embedded)"}})

	rec := do(t, h, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.SessionID != "api-test" || resp.Stats == nil || resp.Stats.Polls != 7 {
		t.Errorf("Unexpected health response %+v", resp)
	}
	if resp.Line != "Provider: OpenSky • 3 states • 120 ms" {
		t.Errorf("Unexpected status line %q", resp.Line)
	}
	if len(resp.Notices) != 1 {
		t.Errorf("Expected roster notice in health response, got %v", resp.Notices)
	}
}

func TestHealth_WithoutOptionalSources(t *testing.T) {
	h := newTestRouter(t, Deps{})

	rec := do(t, h, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"stats"`) {
		t.Errorf("Expected stats omitted, got %s", rec.Body.String())
	}
}

func TestHealth_LastCycle(t *testing.T) {
	h := newTestRouter(t, Deps{})

	if rec := do(t, h, http.MethodGet, "/api/health", ""); strings.Contains(rec.Body.String(), `"last_cycle"`) {
		t.Errorf("Expected last_cycle omitted before any cycle, got %s", rec.Body.String())
	}

	do(t, h, http.MethodPost, "/api/debug/inject", injectBody)

	var resp HealthResponse
	rec := do(t, h, http.MethodGet, "/api/health", "")
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.LastCycle == nil || time.Since(*resp.LastCycle) > time.Minute {
		t.Errorf("Expected recent last_cycle, got %v", resp.LastCycle)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestRouter(t, Deps{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/health"},
		{http.MethodDelete, "/api/traffic/show-all"},
		{http.MethodGet, "/api/debug/inject"},
	}
	for _, tt := range tests {
		if rec := do(t, h, tt.method, tt.path, ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tt.method, tt.path, rec.Code)
		}
	}

	if rec := do(t, h, http.MethodGet, "/api/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestInjectThenRosterAndMarkers(t *testing.T) {
	h := newTestRouter(t, Deps{})

	rec := do(t, h, http.MethodPost, "/api/debug/inject", injectBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var summary session.Summary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}
	if summary.Matched != 1 || len(summary.Unmatched) != 1 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	rec = do(t, h, http.MethodGet, "/api/roster", "")
	var cards []session.Card
	if err := json.NewDecoder(rec.Body).Decode(&cards); err != nil {
		t.Fatalf("Failed to decode cards: %v", err)
	}
	if len(cards) != 2 || cards[0].ID != "blue-angels" || !cards[0].Online {
		t.Errorf("Expected blue-angels first and online, got %+v", cards)
	}

	rec = do(t, h, http.MethodGet, "/api/markers", "")
	var markers []types.MarkerRecord
	if err := json.NewDecoder(rec.Body).Decode(&markers); err != nil {
		t.Fatalf("Failed to decode markers: %v", err)
	}
	if len(markers) != 1 || markers[0].ICAO24 != "abcd12" || !markers[0].Highlighted {
		t.Errorf("Expected one highlighted marker, got %+v", markers)
	}

	rec = do(t, h, http.MethodGet, "/api/unmatched", "")
	if rec.Body.String() != "c0ffee DAL123" {
		t.Errorf("Unexpected unmatched export %q", rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Expected text/plain, got %s", rec.Header().Get("Content-Type"))
	}
}

func TestInject_BadRequests(t *testing.T) {
	h := newTestRouter(t, Deps{})

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "nope"},
		{name: "object instead of array", body: `{"icao24":"abcd12"}`},
		{name: "missing icao24", body: `[{"callsign":"BA6"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/debug/inject", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestOverrides(t *testing.T) {
	h := newTestRouter(t, Deps{})

	rec := do(t, h, http.MethodPut, "/api/overrides/fat-albert", `{"hex":["A1B2C3"],"callsign_regex":["HERC"]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/overrides", "")
	var exported types.Overrides
	if err := json.Unmarshal(rec.Body.Bytes(), &exported); err != nil {
		t.Fatalf("Failed to decode export: %v", err)
	}
	if got := exported["fat-albert"].Hex; len(got) != 1 || got[0] != "a1b2c3" {
		t.Errorf("Expected normalized hex in export, got %v", got)
	}

	rec = do(t, h, http.MethodDelete, "/api/overrides/fat-albert", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/overrides", "")
	if rec.Body.String() != "{}" {
		t.Errorf("Expected empty export after delete, got %q", rec.Body.String())
	}
}

func TestOverrides_Errors(t *testing.T) {
	h := newTestRouter(t, Deps{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "unknown performer", method: http.MethodPut, path: "/api/overrides/thunderbirds", body: `{"hex":[]}`, want: http.StatusNotFound},
		{name: "unknown performer delete", method: http.MethodDelete, path: "/api/overrides/thunderbirds", want: http.StatusNotFound},
		{name: "invalid body", method: http.MethodPut, path: "/api/overrides/fat-albert", body: `[`, want: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodPost, path: "/api/overrides/fat-albert", body: `{}`, want: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestShowAllTraffic(t *testing.T) {
	h := newTestRouter(t, Deps{})

	rec := do(t, h, http.MethodGet, "/api/traffic/show-all", "")
	if strings.TrimSpace(rec.Body.String()) != `{"enabled":false}` {
		t.Errorf("Expected disabled by default, got %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPut, "/api/traffic/show-all", `{"enabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	do(t, h, http.MethodPost, "/api/debug/inject", injectBody)
	rec = do(t, h, http.MethodGet, "/api/markers", "")
	var markers []types.MarkerRecord
	if err := json.NewDecoder(rec.Body).Decode(&markers); err != nil {
		t.Fatalf("Failed to decode markers: %v", err)
	}
	if len(markers) != 2 {
		t.Errorf("Expected unmatched traffic drawn, got %d markers", len(markers))
	}

	if rec := do(t, h, http.MethodPut, "/api/traffic/show-all", `nope`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid body, got %d", rec.Code)
	}
}

func TestUptime(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newTestRouter(t, Deps{})
		if rec := do(t, h, http.MethodGet, "/api/uptime", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rec.Code)
		}
	})

	t.Run("window", func(t *testing.T) {
		src := &fakeUptime{uptime: map[string]int64{"blue-angels": 42}}
		h := newTestRouter(t, Deps{Uptime: src})

		before := time.Now()
		rec := do(t, h, http.MethodGet, "/api/uptime?window=2h", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		if strings.TrimSpace(rec.Body.String()) != `{"blue-angels":42}` {
			t.Errorf("Unexpected body %s", rec.Body.String())
		}
		if d := before.Sub(src.since); d < 2*time.Hour-time.Second || d > 2*time.Hour+time.Second {
			t.Errorf("Expected since about 2h ago, got %s", d)
		}
	})

	t.Run("invalid window", func(t *testing.T) {
		h := newTestRouter(t, Deps{Uptime: &fakeUptime{}})
		if rec := do(t, h, http.MethodGet, "/api/uptime?window=-1h", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("query error", func(t *testing.T) {
		h := newTestRouter(t, Deps{Uptime: &fakeUptime{err: errors.New("connection refused")}})
		if rec := do(t, h, http.MethodGet, "/api/uptime", ""); rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", rec.Code)
		}
	})
}

func TestStatsHistory(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newTestRouter(t, Deps{})
		if rec := do(t, h, http.MethodGet, "/api/stats/history", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rec.Code)
		}
	})

	t.Run("window", func(t *testing.T) {
		src := &fakeHistory{history: []*types.PollStats{{SessionID: "s1", Polls: 12, MatchedStates: 4}}}
		h := newTestRouter(t, Deps{History: src})

		rec := do(t, h, http.MethodGet, "/api/stats/history?window=30m", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rec.Code)
		}
		var got []types.PollStats
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode history: %v", err)
		}
		if len(got) != 1 || got[0].Polls != 12 {
			t.Errorf("Unexpected history %+v", got)
		}
		if d := src.end.Sub(src.start); d != 30*time.Minute {
			t.Errorf("Expected a 30m range, got %s", d)
		}
	})

	t.Run("empty", func(t *testing.T) {
		h := newTestRouter(t, Deps{History: &fakeHistory{}})
		rec := do(t, h, http.MethodGet, "/api/stats/history", "")
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("Expected empty array, got %s", rec.Body.String())
		}
	})

	t.Run("invalid window", func(t *testing.T) {
		h := newTestRouter(t, Deps{History: &fakeHistory{}})
		if rec := do(t, h, http.MethodGet, "/api/stats/history?window=soon", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rec.Code)
		}
	})

	t.Run("query error", func(t *testing.T) {
		h := newTestRouter(t, Deps{History: &fakeHistory{err: errors.New("connection refused")}})
		if rec := do(t, h, http.MethodGet, "/api/stats/history", ""); rec.Code != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %d", rec.Code)
		}
	})
}
