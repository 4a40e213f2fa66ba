// Package cache provides the fast key/value tier in front of the link store.
// It also hosts the shared issuance counter, so every adapter supports
// atomic increments.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL key/value store with an atomic counter primitive.
// Get reports absence as ok=false with a nil error. Backend failures are
// returned as errx.Unavailable.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// DefaultNamespace prefixes every key when no namespace is configured.
const DefaultNamespace = "shortener"

// Keys builds the namespaced key set shared by all instances of the service.
type Keys struct {
	ns string
}

// NewKeys returns a key builder for the given namespace.
func NewKeys(namespace string) Keys {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Keys{ns: namespace}
}

// Link maps a short code to its original URL.
func (k Keys) Link(code string) string { return k.ns + ":link:" + code }

// URL maps an original URL back to its short code.
func (k Keys) URL(url string) string { return k.ns + ":url:" + url }

// Counter is the shared issuance counter.
func (k Keys) Counter() string { return k.ns + ":id_counter" }

// RateLimit holds the admission log of one client identity.
func (k Keys) RateLimit(identity string) string { return k.ns + ":ratelimit:" + identity }
