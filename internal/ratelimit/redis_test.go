package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err, "redis endpoint")

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Ping(ctx).Err(), "ping redis")
	return client
}

func TestRedisSlidingWindow(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	keyFn := func(id string) string { return "test:ratelimit:" + id }

	l := NewRedisSlidingWindow(client, keyFn, &Config{Limit: 10, Window: time.Minute})
	l.now = func() time.Time { return now }

	start := now
	for i := range 10 {
		d, err := l.Check(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.Truef(t, d.Admitted, "request %d should be admitted", i+1)
		assert.Equal(t, 9-i, d.Remaining)
		assert.Equal(t, 10, d.Limit)
		now = now.Add(time.Second)
	}

	d, err := l.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Admitted, "11th request should be denied")
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, start.Add(time.Minute).UnixMilli(), d.ResetAt.UnixMilli())

	n, err := client.ZCard(ctx, keyFn("203.0.113.7")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(10), n, "denied requests must not be recorded")

	ttl, err := client.PTTL(ctx, keyFn("203.0.113.7")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	// the first entry leaves the window at start+60s
	now = start.Add(time.Minute)
	d, err = l.Check(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, d.Admitted)

	d, err = l.Check(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, d.Admitted, "other identities are independent")
	assert.Equal(t, 9, d.Remaining)
}

func TestRedisSlidingWindow_SameMillisecond(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRedisSlidingWindow(client, func(id string) string { return "ms:" + id }, &Config{Limit: 5, Window: time.Minute})
	l.now = func() time.Time { return fixed }

	for i := range 5 {
		d, err := l.Check(ctx, "burst")
		require.NoError(t, err)
		assert.Truef(t, d.Admitted, "request %d in the same millisecond", i+1)
	}

	d, err := l.Check(ctx, "burst")
	require.NoError(t, err)
	assert.False(t, d.Admitted)
}

func TestRedisSlidingWindow_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisSlidingWindow(client, func(id string) string { return id }, nil)

	_, err := l.Check(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, errx.Unavailable, errx.KindOf(err))
}
