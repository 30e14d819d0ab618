package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Pease ANGB (KPSM)
const (
	DefaultCenterLat = 43.0735
	DefaultCenterLon = -70.8207
	DefaultDeltaLat  = 0.30
	DefaultDeltaLon  = 0.40
)

// Config holds the application configuration
type Config struct {
	Provider        string
	ADSBXAPIKey     string
	ADSBXURL        string
	OpenSkyURL      string
	OpenSkyUsername string
	OpenSkyPassword string

	CenterLat float64
	CenterLon float64
	DeltaLat  float64
	DeltaLon  float64

	PollInterval time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	StaleAfter   time.Duration
	FetchTimeout time.Duration

	RosterSource   string
	OverridesFile  string
	ShowAllTraffic bool

	RedisAddr      string
	RedisNamespace string
	NATSURL        string
	DBConnStr      string
	HTTPAddr       string
	OutputDir      string
	LogLevel       string
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Provider:        strings.ToLower(getString("PROVIDER", "opensky")),
		ADSBXAPIKey:     os.Getenv("ADSBX_API_KEY"),
		ADSBXURL:        os.Getenv("ADSBX_URL"),
		OpenSkyURL:      os.Getenv("OPENSKY_URL"),
		OpenSkyUsername: os.Getenv("OPENSKY_USERNAME"),
		OpenSkyPassword: os.Getenv("OPENSKY_PASSWORD"),
		RosterSource:    getString("ROSTER_SOURCE", "performers.json"),
		OverridesFile:   getString("OVERRIDES_FILE", "overrides.json"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisNamespace:  getString("REDIS_NAMESPACE", "airshow"),
		NATSURL:         os.Getenv("NATS_URL"),
		DBConnStr:       os.Getenv("DB_CONN_STR"),
		HTTPAddr:        getString("HTTP_ADDR", ":8080"),
		OutputDir:       getString("OUTPUT_DIR", "./logs"),
		LogLevel:        getString("LOG_LEVEL", "info"),
	}

	var err error
	floats := []struct {
		key    string
		target *float64
		def    float64
	}{
		{"CENTER_LAT", &cfg.CenterLat, DefaultCenterLat},
		{"CENTER_LON", &cfg.CenterLon, DefaultCenterLon},
		{"DELTA_LAT", &cfg.DeltaLat, DefaultDeltaLat},
		{"DELTA_LON", &cfg.DeltaLon, DefaultDeltaLon},
	}
	for _, f := range floats {
		if *f.target, err = getFloat(f.key, f.def); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key    string
		target *time.Duration
		def    time.Duration
	}{
		{"POLL_INTERVAL", &cfg.PollInterval, time.Second},
		{"BACKOFF_MIN", &cfg.BackoffMin, 5 * time.Second},
		{"BACKOFF_MAX", &cfg.BackoffMax, 30 * time.Second},
		{"STALE_AFTER", &cfg.StaleAfter, 30 * time.Second},
		{"FETCH_TIMEOUT", &cfg.FetchTimeout, 10 * time.Second},
	}
	for _, d := range durations {
		if *d.target, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.ShowAllTraffic, err = getBool("SHOW_ALL_TRAFFIC", false); err != nil {
		return nil, err
	}

	if cfg.BackoffMin > cfg.BackoffMax {
		return nil, fmt.Errorf("BACKOFF_MIN (%s) must not exceed BACKOFF_MAX (%s)", cfg.BackoffMin, cfg.BackoffMax)
	}

	return cfg, nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
