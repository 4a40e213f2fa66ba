// Package idgen issues short codes from a shared monotonic counter.
package idgen

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sundayezeilo/shortlink/base62"
	"github.com/sundayezeilo/shortlink/internal/errx"
)

// DefaultFloor is the smallest value ever issued, so codes start at three characters.
const DefaultFloor int64 = 10000

// Counter is the atomic integer store backing the issuer.
// Implementations must make Incr atomic across every process sharing the key.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string) (bool, error)
}

type IssuerConfig struct {
	Key    string
	Floor  int64
	Logger *slog.Logger
}

// Issuer mints unique short codes. It is safe for concurrent use as long as
// the Counter is.
type Issuer struct {
	counter Counter
	key     string
	floor   int64
	logger  *slog.Logger
}

func NewIssuer(counter Counter, cfg *IssuerConfig) *Issuer {
	if cfg == nil {
		cfg = &IssuerConfig{}
	}
	if cfg.Key == "" {
		cfg.Key = "shortener:id_counter"
	}
	if cfg.Floor < 1 {
		cfg.Floor = DefaultFloor
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Issuer{
		counter: counter,
		key:     cfg.Key,
		floor:   cfg.Floor,
		logger:  cfg.Logger,
	}
}

// Next increments the counter and returns the encoded value.
//
// A counter below the floor is forced up to it. Two callers that both observe
// a fresh counter can be handed the same code here; Seed at startup keeps
// this branch unreachable.
func (i *Issuer) Next(ctx context.Context) (string, error) {
	const op = "idgen.issuer.Next"

	n, err := i.counter.Incr(ctx, i.key)
	if err != nil {
		return "", errx.E(op, errx.Unavailable, fmt.Errorf("increment counter: %w", err))
	}

	if n < i.floor {
		i.logger.WarnContext(ctx, "counter below floor, bootstrapping",
			"key", i.key,
			"value", n,
			"floor", i.floor,
		)
		if err := i.counter.Set(ctx, i.key, strconv.FormatInt(i.floor, 10), 0); err != nil {
			return "", errx.E(op, errx.Unavailable, fmt.Errorf("bootstrap counter: %w", err))
		}
		n = i.floor
	}

	code, err := base62.Encode(n)
	if err != nil {
		return "", errx.E(op, errx.Internal, err)
	}
	return code, nil
}

// Seed initializes a missing counter to floor-1 so the first Next yields the
// floor. An existing counter is left untouched. It reports whether it wrote.
func (i *Issuer) Seed(ctx context.Context) (bool, error) {
	const op = "idgen.issuer.Seed"

	ok, err := i.counter.SetNX(ctx, i.key, strconv.FormatInt(i.floor-1, 10))
	if err != nil {
		return false, errx.E(op, errx.Unavailable, err)
	}
	if ok {
		i.logger.InfoContext(ctx, "issuance counter seeded", "key", i.key, "value", i.floor-1)
	}
	return ok, nil
}
