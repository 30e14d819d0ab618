package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/api"
	"github.com/saviobatista/airshow-tracker/internal/config"
	"github.com/saviobatista/airshow-tracker/internal/db"
	"github.com/saviobatista/airshow-tracker/internal/logging"
	"github.com/saviobatista/airshow-tracker/internal/nats"
	"github.com/saviobatista/airshow-tracker/internal/overrides"
	"github.com/saviobatista/airshow-tracker/internal/poller"
	"github.com/saviobatista/airshow-tracker/internal/provider"
	"github.com/saviobatista/airshow-tracker/internal/redis"
	"github.com/saviobatista/airshow-tracker/internal/roster"
	"github.com/saviobatista/airshow-tracker/internal/session"
	"github.com/saviobatista/airshow-tracker/internal/stats"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

const (
	statsPersistInterval = 5 * time.Minute
	statsLogInterval     = time.Minute
	shutdownTimeout      = 5 * time.Second
)

// clients holds the optional infrastructure; any field may be nil
type clients struct {
	nats  *nats.Client
	db    *db.Client
	redis *redis.Client
}

// app is the fully wired tracker
type app struct {
	cfg     *config.Config
	clients *clients
	session *session.Session
	loop    *poller.Loop
	stats   *stats.Stats
	handler http.Handler
	notices []string
	log     zerolog.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("Tracker failed")
		stop()
		os.Exit(1)
	}
}

// run wires the tracker, serves the API and polls until ctx is done
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	return a.serve(ctx)
}

// connect creates the clients whose addresses are configured
func connect(cfg *config.Config, log zerolog.Logger) (*clients, error) {
	c := &clients{}

	if cfg.NATSURL != "" {
		natsClient, err := nats.New(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS client: %w", err)
		}
		c.nats = natsClient.WithLogger(logging.Component(log, "nats"))
	}

	if cfg.DBConnStr != "" {
		dbClient, err := db.New(cfg.DBConnStr)
		if err == nil {
			err = dbClient.Ping()
		}
		if err != nil {
			if dbClient != nil {
				_ = dbClient.Close()
			}
			c.close(log)
			return nil, fmt.Errorf("failed to create database client: %w", err)
		}
		c.db = dbClient
	}

	if cfg.RedisAddr != "" {
		redisClient, err := redis.New(cfg.RedisAddr)
		if err != nil {
			c.close(log)
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		c.redis = redisClient
	}

	return c, nil
}

func (c *clients) close(log zerolog.Logger) {
	if c.nats != nil {
		c.nats.Close()
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database client")
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing Redis client")
		}
	}
}

// overrideStore keeps overrides in Redis when it is configured, else in a file
func overrideStore(cfg *config.Config, c *clients) overrides.Store {
	if c.redis != nil {
		return c.redis.NewOverrideStore(cfg.RedisNamespace)
	}
	return overrides.NewFileStore(cfg.OverridesFile)
}

// selectProvider builds both feeds and picks the configured one
func selectProvider(cfg *config.Config, client *http.Client, log zerolog.Logger) (provider.Provider, string) {
	openSky := provider.NewOpenSky(client, cfg.OpenSkyURL, cfg.OpenSkyUsername, cfg.OpenSkyPassword)
	adsbx := provider.NewADSBX(client, cfg.ADSBXURL, cfg.ADSBXAPIKey)
	return provider.Select(cfg.Provider, openSky, adsbx, log)
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	c, err := connect(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, clients: c, log: log}
	httpClient := provider.NewHTTPClient(cfg.FetchTimeout)

	feed, notice := selectProvider(cfg, httpClient, logging.Component(log, "provider"))
	if notice != "" {
		a.notices = append(a.notices, notice)
	}

	performers, notice := roster.Load(ctx, cfg.RosterSource, httpClient, logging.Component(log, "roster"))
	if notice != "" {
		a.notices = append(a.notices, notice)
	}

	store := overrideStore(cfg, c)
	ov := overrides.LoadOrEmpty(ctx, store, logging.Component(log, "overrides"))

	sessionID := uuid.New().String()
	a.stats = stats.New(sessionID)

	scfg := session.Config{
		ID:             sessionID,
		Roster:         performers,
		Overrides:      ov,
		Store:          store,
		Stats:          a.stats,
		StaleAfter:     cfg.StaleAfter,
		ShowAllTraffic: cfg.ShowAllTraffic,
		Logger:         logging.Component(log, "session"),
	}
	if c.nats != nil {
		scfg.Notifier = c.nats
		scfg.Renderer = nats.NewMarkerPublisher(c.nats, sessionID)
	}
	a.session = session.New(scfg)

	bbox := types.NewBBox(cfg.CenterLat, cfg.CenterLon, cfg.DeltaLat, cfg.DeltaLon)
	a.loop, err = poller.New(feed, bbox, func(states []types.AircraftState) {
		a.session.ProcessCycle(states)
	},
		poller.WithBackoff(poller.NewBackoff(cfg.PollInterval, cfg.BackoffMin, cfg.BackoffMax)),
		poller.WithTimeout(cfg.FetchTimeout),
		poller.WithRecorder(a.stats),
		poller.WithLogger(logging.Component(log, "poller")),
	)
	if err != nil {
		c.close(log)
		return nil, fmt.Errorf("failed to create poll loop: %w", err)
	}

	deps := api.Deps{
		Tracker: a.session,
		Status:  a.loop,
		Stats:   a.stats,
		Notices: a.notices,
		Logger:  logging.Component(log, "api"),
	}
	if c.db != nil {
		a.stats.SetDB(c.db)
		deps.Uptime = c.db
		deps.History = c.db
	}
	a.handler = api.NewRouter(deps)

	log.Info().
		Str("session_id", sessionID).
		Str("provider", feed.Name()).
		Int("performers", len(performers)).
		Int("overrides", len(ov)).
		Bool("nats", c.nats != nil).
		Bool("db", c.db != nil).
		Bool("redis", c.redis != nil).
		Msg("Tracker ready")

	return a, nil
}

// serve runs the HTTP server and the poll loop until ctx is done or the
// server fails. It returns only after every background worker has stopped,
// so the final statistics write lands before the clients are closed.
func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("HTTP API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var workers sync.WaitGroup
	if a.clients.db != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			a.stats.StartPersistence(ctx, statsPersistInterval, logging.Component(a.log, "stats"))
		}()
	}

	workers.Add(2)
	go func() {
		defer workers.Done()
		a.logStats(ctx, statsLogInterval)
	}()
	go func() {
		defer workers.Done()
		if err := a.loop.Run(ctx); err != nil {
			a.log.Error().Err(err).Msg("Poll loop stopped")
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Shutting down...")
	case err = <-srvErr:
		err = fmt.Errorf("failed to serve HTTP API: %w", err)
	}

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn().Err(serr).Msg("HTTP shutdown failed")
	}
	workers.Wait()

	return err
}

// logStats periodically logs the poll counters
func (a *app) logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.log.Info().Msgf("Statistics:\n%s", a.stats)
		}
	}
}

func (a *app) close() {
	a.clients.close(a.log)
}
