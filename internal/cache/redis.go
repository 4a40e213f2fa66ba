package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// DefaultOpTimeout bounds a single Redis round trip when none is configured.
const DefaultOpTimeout = 250 * time.Millisecond

// Redis is a Cache backed by a shared Redis deployment.
type Redis struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// NewRedis wraps client. Every call runs under opTimeout so a hung backend
// fails fast instead of stalling the request.
func NewRedis(client redis.UniversalClient, opTimeout time.Duration) *Redis {
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &Redis{client: client, opTimeout: opTimeout}
}

func (c *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "cache.redis.Get"

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errx.E(op, errx.Unavailable, err)
	}
	return val, true, nil
}

func (c *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const op = "cache.redis.Set"

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errx.E(op, errx.Unavailable, err)
	}
	return nil
}

func (c *Redis) SetNX(ctx context.Context, key, value string) (bool, error) {
	const op = "cache.redis.SetNX"

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	ok, err := c.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, errx.E(op, errx.Unavailable, err)
	}
	return ok, nil
}

func (c *Redis) Incr(ctx context.Context, key string) (int64, error) {
	const op = "cache.redis.Incr"

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errx.E(op, errx.Unavailable, err)
	}
	return n, nil
}
