package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/saviobatista/airshow-tracker/internal/types"
)

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to s
func String(s string) *string {
	return &s
}

// MockState creates an airborne state at lat,lon with altitude, speed and heading set
func MockState(icao24, callsign string, lat, lon float64) types.AircraftState {
	st := types.AircraftState{
		ICAO24:       icao24,
		Latitude:     Float(lat),
		Longitude:    Float(lon),
		BaroAltitude: Float(1000),
		Velocity:     Float(100),
		Heading:      Float(270),
	}
	if callsign != "" {
		st.Callsign = String(callsign)
	}
	return st
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
		}
	}
}
