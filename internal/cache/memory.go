package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// Memory is an in-process Cache for single-instance deployments and tests.
// Counters and entries are not shared between processes.
type Memory struct {
	items *gocache.Cache

	// mu serializes writes so Incr's read-modify-write cannot interleave
	// with Set or SetNX on the same key.
	mu sync.Mutex
}

// NewMemory returns an empty in-process cache. Expired entries are purged
// every cleanupInterval.
func NewMemory(cleanupInterval time.Duration) *Memory {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &Memory{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (c *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (c *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Set(key, value, expiration(ttl))
	return nil
}

func (c *Memory) SetNX(_ context.Context, key, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.items.Add(key, value, gocache.NoExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

// Incr follows Redis INCR: a missing key counts from zero and an existing
// expiry is kept.
func (c *Memory) Incr(_ context.Context, key string) (int64, error) {
	const op = "cache.memory.Incr"

	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	ttl := gocache.NoExpiration

	v, exp, ok := c.items.GetWithExpiration(key)
	if ok {
		parsed, err := strconv.ParseInt(v.(string), 10, 64)
		if err != nil {
			return 0, errx.E(op, errx.Internal, fmt.Errorf("value at %q is not an integer", key))
		}
		n = parsed
		if !exp.IsZero() {
			ttl = time.Until(exp)
		}
	}

	n++
	c.items.Set(key, strconv.FormatInt(n, 10), ttl)
	return n, nil
}

// Flush drops every entry.
func (c *Memory) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Flush()
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}
