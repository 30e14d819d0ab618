// Package poller drives the periodic fetch of aircraft states with a single
// outstanding timer and exponential backoff on failure.
package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/provider"
	"github.com/saviobatista/airshow-tracker/internal/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/saviobatista/airshow-tracker/internal/poller"

// Status messages
const (
	MessageUpdating = "Updating…"
	MessageFailed   = "Fetch failed (rate limit?). Retrying…"
)

// State is the loop phase
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateSuccess  State = "success"
	StateFailure  State = "failure"
)

// Handler receives every successfully fetched snapshot
type Handler func(states []types.AircraftState)

// Recorder counts fetch attempts
type Recorder interface {
	RecordFetch(provider string, latency time.Duration, err error)
}

// Status is a snapshot of the loop for health views
type Status struct {
	State       State         `json:"state"`
	Message     string        `json:"message"`
	Provider    string        `json:"provider"`
	LastLatency time.Duration `json:"last_latency"`
	LastCount   int           `json:"last_count"`
	LastSuccess time.Time     `json:"last_success"`
	LastError   string        `json:"last_error,omitempty"`
	RateLimited bool          `json:"rate_limited"`
	NextAttempt time.Time     `json:"next_attempt"`
	Delay       time.Duration `json:"delay"`
}

// Line renders the status line shown next to the map
func (s Status) Line() string {
	if s.State == StateSuccess {
		return fmt.Sprintf("Provider: %s • %d states • %d ms", s.Provider, s.LastCount, s.LastLatency.Milliseconds())
	}
	return s.Message
}

// Loop polls one provider for one bounding box
type Loop struct {
	provider provider.Provider
	bbox     types.BBox
	handle   Handler
	backoff  *Backoff
	timeout  time.Duration
	recorder Recorder
	log      zerolog.Logger
	now      func() time.Time
	tick     time.Duration

	onSchedule func(delay time.Duration)

	fetchTotal    metric.Int64Counter
	fetchDuration metric.Float64Histogram

	mu     sync.RWMutex
	status Status
}

// Option configures a Loop
type Option func(*Loop)

// WithBackoff replaces the default backoff controller
func WithBackoff(b *Backoff) Option {
	return func(l *Loop) { l.backoff = b }
}

// WithTimeout sets the per-fetch timeout
func WithTimeout(d time.Duration) Option {
	return func(l *Loop) { l.timeout = d }
}

// WithRecorder sets the fetch statistics recorder
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithOnSchedule registers a hook called with every scheduled delay
func WithOnSchedule(fn func(delay time.Duration)) Option {
	return func(l *Loop) { l.onSchedule = fn }
}

// New creates a loop. Metrics come from the global OTel meter (no-op if not configured).
func New(p provider.Provider, bbox types.BBox, handle Handler, opts ...Option) (*Loop, error) {
	l := &Loop{
		provider: p,
		bbox:     bbox,
		handle:   handle,
		backoff:  NewBackoff(DefaultInterval, DefaultBackoffMin, DefaultBackoffMax),
		timeout:  10 * time.Second,
		log:      zerolog.Nop(),
		now:      time.Now,
		tick:     time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.status = Status{State: StateIdle, Provider: p.Name(), Delay: l.backoff.Current()}

	m := otel.Meter(instrumentationName)
	var err error

	l.fetchTotal, err = m.Int64Counter(
		"poller.fetch.total",
		metric.WithDescription("Total fetch attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch counter: %w", err)
	}

	l.fetchDuration, err = m.Float64Histogram(
		"poller.fetch.duration",
		metric.WithDescription("Fetch latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch histogram: %w", err)
	}

	return l, nil
}

// Status returns a copy of the current status
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

func (l *Loop) update(fn func(s *Status)) {
	l.mu.Lock()
	fn(&l.status)
	l.mu.Unlock()
}

// Run polls until ctx is cancelled. Exactly one fetch is in flight at a time.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().
		Str("provider", l.provider.Name()).
		Interface("bbox", l.bbox).
		Msg("Starting poll loop")

	for {
		delay := l.Poll(ctx)
		if ctx.Err() != nil {
			l.update(func(s *Status) { s.State = StateIdle })
			return nil
		}
		if !l.wait(ctx, delay) {
			l.update(func(s *Status) { s.State = StateIdle })
			return nil
		}
	}
}

// Poll performs one fetch, hands a successful snapshot to the handler and
// returns the delay before the next attempt.
func (l *Loop) Poll(ctx context.Context) time.Duration {
	l.update(func(s *Status) {
		s.State = StateFetching
		s.Message = MessageUpdating
	})

	fctx, cancel := context.WithTimeout(ctx, l.timeout)
	start := l.now()
	states, err := l.provider.FetchStates(fctx, l.bbox)
	latency := l.now().Sub(start)
	cancel()

	if err != nil && ctx.Err() != nil {
		return 0
	}

	l.observe(ctx, latency, err)
	if l.recorder != nil {
		l.recorder.RecordFetch(l.provider.Name(), latency, err)
	}

	if err != nil {
		delay := l.backoff.Failure()
		limited := rateLimited(err)
		l.log.Warn().Err(err).Bool("rate_limited", limited).Dur("retry_in", delay).Msg("Fetch failed")
		l.update(func(s *Status) {
			s.State = StateFailure
			s.Message = MessageFailed
			s.LastError = err.Error()
			s.RateLimited = limited
			s.Delay = delay
			s.NextAttempt = l.now().Add(delay)
		})
		return delay
	}

	l.handle(states)

	delay := l.backoff.Success()
	now := l.now()
	l.update(func(s *Status) {
		s.State = StateSuccess
		s.Message = fmt.Sprintf("Live • %s", now.Format("15:04:05"))
		s.LastLatency = latency
		s.LastCount = len(states)
		s.LastSuccess = now
		s.LastError = ""
		s.RateLimited = false
		s.Delay = delay
		s.NextAttempt = now.Add(delay)
	})
	l.log.Debug().Int("states", len(states)).Dur("latency", latency).Msg("Fetched states")
	return delay
}

func rateLimited(err error) bool {
	var httpErr *provider.HTTPError
	return errors.As(err, &httpErr) && httpErr.RateLimited()
}

func (l *Loop) observe(ctx context.Context, latency time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("provider", l.provider.Name()),
	)
	l.fetchTotal.Add(ctx, 1, attrs)
	l.fetchDuration.Record(ctx, float64(latency.Microseconds())/1000, attrs)
}

// wait blocks for delay on a single timer. While failing, the status
// message counts down once per tick. It reports false when ctx ends first.
func (l *Loop) wait(ctx context.Context, delay time.Duration) bool {
	if l.onSchedule != nil {
		l.onSchedule(delay)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	if l.Status().State != StateFailure {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		}
	}

	deadline := time.Now().Add(delay)
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	l.countdown(deadline)

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case <-ticker.C:
			l.countdown(deadline)
		}
	}
}

func (l *Loop) countdown(deadline time.Time) {
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	secs := int(math.Ceil(remaining.Seconds()))
	l.update(func(s *Status) {
		s.Message = fmt.Sprintf("Fetch failed (rate limit?). Retrying in %ds", secs)
	})
}
