package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// slidingWindowScript keeps one sorted set per identity, scored by admission
// time in milliseconds.
//
// KEYS[1]: log key
// ARGV[1]: now (unix ms)
// ARGV[2]: window (ms)
// ARGV[3]: limit
// ARGV[4]: member id
//
// Returns {admitted, count, oldest score}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
    redis.call('ZADD', key, now, member)
    count = count + 1
    admitted = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
    oldest = tonumber(first[2])
end

if count > 0 then
    redis.call('PEXPIRE', key, window)
end

return {admitted, count, oldest}
`)

// RedisSlidingWindow is a Limiter shared by every instance pointing at the
// same Redis deployment.
type RedisSlidingWindow struct {
	client redis.Scripter
	keyFn  func(identity string) string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisSlidingWindow returns a Limiter whose log for identity lives at keyFn(identity).
func NewRedisSlidingWindow(client redis.Scripter, keyFn func(identity string) string, cfg *Config) *RedisSlidingWindow {
	c := cfg.withDefaults()
	return &RedisSlidingWindow{
		client: client,
		keyFn:  keyFn,
		limit:  c.Limit,
		window: c.Window,
		now:    time.Now,
	}
}

func (l *RedisSlidingWindow) Check(ctx context.Context, identity string) (Decision, error) {
	const op = "ratelimit.redis.Check"

	now := l.now().UnixMilli()

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.keyFn(identity)},
		now,
		l.window.Milliseconds(),
		l.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, errx.E(op, errx.Unavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, errx.E(op, errx.Internal, fmt.Errorf("unexpected script reply: %v", res))
	}

	count := int(res[1])
	return Decision{
		Admitted:  res[0] == 1,
		Limit:     l.limit,
		Remaining: remaining(l.limit, count),
		ResetAt:   time.UnixMilli(res[2]).Add(l.window),
	}, nil
}
