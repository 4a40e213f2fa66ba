package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"

	// DeniedMessage is the body error text of a 429 response.
	DeniedMessage = "Too many requests. Please try again later."

	defaultCheckTimeout = 250 * time.Millisecond
	fallbackIdentity    = "127.0.0.1"
)

type MiddlewareConfig struct {
	Limiter Limiter
	Logger  *slog.Logger
	// Timeout bounds one limiter call. Zero means 250ms.
	Timeout time.Duration
	// Identity extracts the client key. Nil means ClientIdentity.
	Identity func(r *http.Request) string
}

// Middleware gates the wrapped handler with Limiter. Rate-limit headers are
// set on every checked response. A failing limiter admits the request.
func Middleware(cfg MiddlewareConfig) httpx.Middleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCheckTimeout
	}
	if cfg.Identity == nil {
		cfg.Identity = ClientIdentity
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := cfg.Identity(r)

			ctx, cancel := context.WithTimeout(r.Context(), cfg.Timeout)
			decision, err := cfg.Limiter.Check(ctx, identity)
			cancel()

			if err != nil {
				cfg.Logger.WarnContext(r.Context(), "rate limiter unavailable, admitting request",
					"request_id", httpx.GetRequestID(r.Context()),
					"identity", identity,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set(HeaderLimit, strconv.Itoa(decision.Limit))
			h.Set(HeaderRemaining, strconv.Itoa(decision.Remaining))
			h.Set(HeaderReset, strconv.FormatInt(decision.ResetAt.UnixMilli(), 10))

			if !decision.Admitted {
				retry := math.Ceil(time.Until(decision.ResetAt).Seconds())
				if retry < 1 {
					retry = 1
				}
				h.Set("Retry-After", strconv.Itoa(int(retry)))

				httpx.WriteError(w, http.StatusTooManyRequests,
					httpx.ErrorKindToCode(errx.RateLimited),
					DeniedMessage,
					nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIdentity returns the first X-Forwarded-For entry, then X-Real-IP,
// then the loopback address. The headers are only trustworthy behind a proxy
// that overwrites them.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return fallbackIdentity
}
