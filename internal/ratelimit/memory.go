package ratelimit

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemorySlidingWindow is a process-local Limiter. Idle identities expire
// after one window.
type MemorySlidingWindow struct {
	logs   *gocache.Cache
	limit  int
	window time.Duration
	now    func() time.Time

	mu sync.Mutex
}

func NewMemorySlidingWindow(cfg *Config) *MemorySlidingWindow {
	c := cfg.withDefaults()
	return &MemorySlidingWindow{
		logs:   gocache.New(c.Window, c.Window),
		limit:  c.Limit,
		window: c.Window,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *MemorySlidingWindow) WithClock(now func() time.Time) *MemorySlidingWindow {
	l.now = now
	return l
}

func (l *MemorySlidingWindow) Check(_ context.Context, identity string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	var log []time.Time
	if v, ok := l.logs.Get(identity); ok {
		log = v.([]time.Time)
	}

	// entries at or before cutoff have left the window
	keep := 0
	for keep < len(log) && !log[keep].After(cutoff) {
		keep++
	}
	log = log[keep:]

	admitted := len(log) < l.limit
	if admitted {
		log = append(log, now)
	}

	oldest := now
	if len(log) > 0 {
		oldest = log[0]
		l.logs.Set(identity, log, l.window)
	} else {
		l.logs.Delete(identity)
	}

	return Decision{
		Admitted:  admitted,
		Limit:     l.limit,
		Remaining: remaining(l.limit, len(log)),
		ResetAt:   oldest.Add(l.window),
	}, nil
}
