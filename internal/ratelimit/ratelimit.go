// Package ratelimit implements sliding-window admission control for code
// issuance, keyed by client identity.
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted  bool
	Limit     int
	Remaining int
	// ResetAt is when the oldest admitted request leaves the window.
	ResetAt time.Time
}

// Limiter admits at most Limit requests per identity in any trailing window.
// Denied requests are not recorded.
type Limiter interface {
	Check(ctx context.Context, identity string) (Decision, error)
}

type Config struct {
	Limit  int
	Window time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{Limit: DefaultLimit, Window: DefaultWindow}
	if c == nil {
		return out
	}
	if c.Limit > 0 {
		out.Limit = c.Limit
	}
	if c.Window > 0 {
		out.Window = c.Window
	}
	return out
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
