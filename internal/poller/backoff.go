package poller

import "time"

// Default delays
const (
	DefaultInterval   = time.Second
	DefaultBackoffMin = 5 * time.Second
	DefaultBackoffMax = 30 * time.Second
)

// Backoff computes the delay before the next fetch. After a failure the
// delay is min(max(prev*2, min), max); a success resets it to base.
type Backoff struct {
	base    time.Duration
	min     time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a controller seeded with the base interval
func NewBackoff(base, minDelay, maxDelay time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultInterval
	}
	if minDelay <= 0 {
		minDelay = DefaultBackoffMin
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Backoff{base: base, min: minDelay, max: maxDelay, current: base}
}

// Success resets the delay to the base interval
func (b *Backoff) Success() time.Duration {
	b.current = b.base
	return b.current
}

// Failure grows the delay and returns it
func (b *Backoff) Failure() time.Duration {
	next := b.current * 2
	if next < b.min {
		next = b.min
	}
	if next > b.max {
		next = b.max
	}
	b.current = next
	return next
}

// Current returns the last computed delay
func (b *Backoff) Current() time.Duration {
	return b.current
}
