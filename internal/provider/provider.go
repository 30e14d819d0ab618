package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

// ErrNotConfigured is returned by a feed that lacks its credentials
var ErrNotConfigured = errors.New("provider not configured")

// maxBodyBytes bounds how much of a response we read
const maxBodyBytes = 16 << 20

// Provider fetches a snapshot of aircraft states inside a bounding box
type Provider interface {
	Name() string
	Configured() bool
	FetchStates(ctx context.Context, bbox types.BBox) ([]types.AircraftState, error)
}

// HTTPError is a non-2xx response from a feed
type HTTPError struct {
	Provider   string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s HTTP %d", e.Provider, e.StatusCode)
}

// RateLimited reports whether the feed asked us to slow down
func (e *HTTPError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// ShapeError is a payload that does not have the expected JSON shape
type ShapeError struct {
	Provider string
	Reason   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s payload: %s", e.Provider, e.Reason)
}

// NewHTTPClient creates the client shared by the feeds
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// get performs a GET and returns the body of a 2xx response
func get(ctx context.Context, client *http.Client, name string, req *http.Request) ([]byte, error) {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Provider: name, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", name, err)
	}
	return body, nil
}

// Select returns the named feed, falling back to OpenSky when the keyed feed
// is unconfigured. The notice is non-empty when a fallback happened.
func Select(name string, openSky, adsbx Provider, log zerolog.Logger) (Provider, string) {
	if name != "adsbx" && name != "adbx" {
		return openSky, ""
	}
	if !adsbx.Configured() {
		notice := "ADS-B Exchange not configured. Falling back to OpenSky."
		log.Warn().Str("requested", name).Msg(notice)
		return openSky, notice
	}
	return adsbx, ""
}
