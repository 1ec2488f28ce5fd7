package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// DefaultWindow is the length of a rate limit window.
	DefaultWindow = time.Minute

	// DefaultMax is the number of requests admitted per window.
	DefaultMax = 30
)

// ErrInvalidConfig is returned for non-positive windows or limits.
var ErrInvalidConfig = errors.New("ratelimit: window and max must be positive")

// Config sets the fixed-window parameters.
type Config struct {
	Window time.Duration
	Max    int
}

// DefaultConfig returns 30 requests per minute.
func DefaultConfig() Config {
	return Config{Window: DefaultWindow, Max: DefaultMax}
}

// Validate checks that both parameters are positive.
func (c Config) Validate() error {
	if c.Window <= 0 || c.Max <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Window is one client's admission state.
type Window struct {
	Start time.Time
	Count int
}

// expired reports whether the window no longer applies at now.
func (w Window) expired(now time.Time, length time.Duration) bool {
	return !now.Before(w.Start.Add(length))
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window resets, at least 1.
func (d Decision) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter decides whether a client may proceed.
type Limiter interface {
	Admit(ctx context.Context, addr string, now time.Time) (Decision, error)
}
