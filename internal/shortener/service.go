package shortener

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sundayezeilo/shortlink/base62"
	"github.com/sundayezeilo/shortlink/internal/cache"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
)

const (
	MaxURLLength        = 2048
	DefaultCacheTTL     = 24 * time.Hour
	DefaultVisitTimeout = 5 * time.Second
)

// User-facing validation messages, checked in this order.
const (
	MsgInvalidURL = "Please enter a valid URL"
	MsgURLTooLong = "URL must be under 2048 characters"
	MsgURLScheme  = "URL must start with http:// or https://"
)

var (
	ErrInvalidURL = errors.New("invalid url")
	ErrURLTooLong = errors.New("url longer than 2048 characters")
	ErrURLScheme  = errors.New("url scheme is not http or https")
)

// ValidationMessage returns the user-facing message for a URL validation
// failure in err's chain, or "" when there is none.
func ValidationMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return MsgInvalidURL
	case errors.Is(err, ErrURLTooLong):
		return MsgURLTooLong
	case errors.Is(err, ErrURLScheme):
		return MsgURLScheme
	}
	return ""
}

// CodeIssuer mints a fresh, never reused short code.
type CodeIssuer interface {
	Next(ctx context.Context) (string, error)
}

// Service defines the business logic operations for URL shortening.
type Service interface {
	// Create returns a short code for rawURL, reusing an existing mapping when
	// one is found.
	Create(ctx context.Context, rawURL string) (CreateResult, error)
	// Resolve returns the original URL for code and records a visit in the
	// background.
	Resolve(ctx context.Context, code string) (string, error)
	GetByCode(ctx context.Context, code string) (Link, error)
	// Close waits for in-flight visit increments until ctx is done.
	Close(ctx context.Context) error
}

// service implements the Service interface.
type service struct {
	store        LinkStore
	cache        cache.Cache
	keys         cache.Keys
	issuer       CodeIssuer
	baseURL      string
	cacheTTL     time.Duration
	visitTimeout time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	closed bool
	visits sync.WaitGroup
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	Cache        cache.Cache
	Keys         cache.Keys
	Issuer       CodeIssuer
	BaseURL      string        // e.g. "https://short.ly"
	CacheTTL     time.Duration // default: 24h
	VisitTimeout time.Duration // default: 5s
	Logger       *slog.Logger
}

// NewService creates a new service instance. A nil Cache falls back to an
// in-process cache, and a nil Issuer counts in that cache.
func NewService(store LinkStore, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	keys := config.Keys
	if keys == (cache.Keys{}) {
		keys = cache.NewKeys("")
	}

	c := config.Cache
	if c == nil {
		c = cache.NewMemory(time.Minute)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	issuer := config.Issuer
	if issuer == nil {
		issuer = idgen.NewIssuer(c, &idgen.IssuerConfig{Key: keys.Counter(), Logger: logger})
	}

	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	visitTimeout := config.VisitTimeout
	if visitTimeout <= 0 {
		visitTimeout = DefaultVisitTimeout
	}

	return &service{
		store:        store,
		cache:        c,
		keys:         keys,
		issuer:       issuer,
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		cacheTTL:     ttl,
		visitTimeout: visitTimeout,
		logger:       logger,
	}
}

func (s *service) Create(ctx context.Context, rawURL string) (CreateResult, error) {
	const op = "shortener.service.Create"

	if err := validateURL(rawURL); err != nil {
		return CreateResult{}, errx.E(op, errx.Invalid, err)
	}

	// Dedup is best effort: two concurrent creates for one URL may both miss
	// and mint separate codes. Both links stay valid.
	code, ok, err := s.cache.Get(ctx, s.keys.URL(rawURL))
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed, checking store",
			"error", err,
			"operation", errx.OpOf(err),
		)
	}
	if ok {
		return s.result(code, false), nil
	}

	existing, err := s.store.FindByURL(ctx, rawURL)
	switch {
	case err == nil:
		s.populate(ctx, existing.ShortCode, rawURL)
		return s.result(existing.ShortCode, false), nil
	case !errx.Is(err, errx.NotFound):
		return CreateResult{}, errx.E(op, errx.Internal, err)
	}

	code, err = s.issuer.Next(ctx)
	if err != nil {
		return CreateResult{}, errx.E(op, errx.Internal, err)
	}

	link, err := s.store.Insert(ctx, rawURL, code)
	if err != nil {
		if errx.Is(err, errx.Conflict) {
			s.logger.ErrorContext(ctx, "issued code already stored",
				"short_code", code,
				"error", err,
			)
		}
		return CreateResult{}, errx.E(op, errx.Internal, err)
	}

	s.populate(ctx, link.ShortCode, rawURL)
	return s.result(link.ShortCode, true), nil
}

func (s *service) Resolve(ctx context.Context, code string) (string, error) {
	const op = "shortener.service.Resolve"

	if !base62.Valid(code) {
		return "", errx.E(op, errx.NotFound, errors.New("malformed short code"))
	}

	target, ok, err := s.cache.Get(ctx, s.keys.Link(code))
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed, falling back to store",
			"short_code", code,
			"error", err,
		)
	}
	if ok {
		s.countVisit(ctx, code)
		return target, nil
	}

	link, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errx.Is(err, errx.NotFound) {
			return "", errx.E(op, errx.NotFound, err)
		}
		return "", errx.E(op, errx.Internal, err)
	}

	if err := s.cache.Set(ctx, s.keys.Link(code), link.OriginalURL, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "cache populate failed",
			"short_code", code,
			"error", err,
		)
	}

	s.countVisit(ctx, code)
	return link.OriginalURL, nil
}

func (s *service) GetByCode(ctx context.Context, code string) (Link, error) {
	const op = "shortener.service.GetByCode"

	if !base62.Valid(code) {
		return Link{}, errx.E(op, errx.NotFound, errors.New("malformed short code"))
	}

	link, err := s.store.FindByCode(ctx, code)
	if err != nil {
		if errx.Is(err, errx.NotFound) {
			return Link{}, errx.E(op, errx.NotFound, errors.New("link not found"))
		}
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return link, nil
}

func (s *service) Close(ctx context.Context) error {
	const op = "shortener.service.Close"

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.visits.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errx.E(op, errx.Unavailable, ctx.Err())
	}
}

// countVisit increments the visit counter on a detached goroutine. The
// caller never waits for it and failures are only logged.
func (s *service) countVisit(ctx context.Context, code string) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		s.logger.WarnContext(ctx, "service closing, visit dropped", "short_code", code)
		return
	}
	s.visits.Add(1)
	s.mu.RUnlock()

	go func() {
		defer s.visits.Done()

		vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.visitTimeout)
		defer cancel()

		if err := s.store.IncrementVisits(vctx, code); err != nil {
			s.logger.WarnContext(vctx, "visit increment failed",
				"short_code", code,
				"error", err,
			)
		}
	}()
}

// populate writes both cache directions. Failures are logged and swallowed.
func (s *service) populate(ctx context.Context, code, rawURL string) {
	if err := s.cache.Set(ctx, s.keys.Link(code), rawURL, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "cache populate failed", "key", "link", "short_code", code, "error", err)
	}
	if err := s.cache.Set(ctx, s.keys.URL(rawURL), code, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "cache populate failed", "key", "url", "short_code", code, "error", err)
	}
}

func (s *service) result(code string, created bool) CreateResult {
	return CreateResult{
		ShortCode: code,
		ShortURL:  s.baseURL + "/" + code,
		Created:   created,
	}
}

// validateURL reports the first violated rule: well-formed absolute URL,
// length in characters, then http(s) scheme.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Host == "" && u.Opaque == "") {
		return ErrInvalidURL
	}
	if utf8.RuneCountInString(rawURL) > MaxURLLength {
		return ErrURLTooLong
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ErrURLScheme
	}
	return nil
}
