package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/ratelimit"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

/***************
 * Mocks
 ***************/

type mockService struct {
	createFunc  func(ctx context.Context, rawURL string) (shortener.CreateResult, error)
	resolveFunc func(ctx context.Context, code string) (string, error)
}

func (m *mockService) Create(ctx context.Context, rawURL string) (shortener.CreateResult, error) {
	return m.createFunc(ctx, rawURL)
}

func (m *mockService) Resolve(ctx context.Context, code string) (string, error) {
	return m.resolveFunc(ctx, code)
}

func (m *mockService) GetByCode(ctx context.Context, code string) (shortener.Link, error) {
	return shortener.Link{ID: 1, OriginalURL: "https://example.com", ShortCode: code}, nil
}

func (m *mockService) Close(ctx context.Context) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			BaseURL:         "http://sho.rt",
			NotFoundPath:    "/?error=not-found",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			IdleTimeout:     30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Redis: config.RedisConfig{OpTimeout: 250 * time.Millisecond},
		App:   config.AppConfig{Environment: "test", LogLevel: "error"},
		Observability: config.ObservabilityConfig{
			ServiceName:    "shortlink-test",
			ServiceVersion: "test",
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(svc shortener.Service, limiter ratelimit.Limiter) *Server {
	cfg := testConfig()
	logger := discardLogger()
	h := shortener.NewHandler(shortener.HandlerConfig{
		Service:      svc,
		Logger:       logger,
		BaseURL:      cfg.Server.BaseURL,
		NotFoundPath: cfg.Server.NotFoundPath,
	})
	return New(cfg, logger, h, limiter)
}

func okService() *mockService {
	return &mockService{
		createFunc: func(ctx context.Context, rawURL string) (shortener.CreateResult, error) {
			return shortener.CreateResult{ShortCode: "2Bi", ShortURL: "http://sho.rt/2Bi", Created: true}, nil
		},
		resolveFunc: func(ctx context.Context, code string) (string, error) {
			return "https://example.com", nil
		},
	}
}

func post(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/shorten", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", ip)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

/***************
 * Tests
 ***************/

func TestHealthCheck(t *testing.T) {
	h := newTestServer(okService(), nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "shortlink-test" || body["version"] != "test" {
		t.Errorf("unexpected health body: %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header from middleware chain")
	}
}

func TestRoutes(t *testing.T) {
	h := newTestServer(okService(), nil).Handler()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"redirect", http.MethodGet, "/2Bi", http.StatusFound},
		{"link record", http.MethodGet, "/api/links/2Bi", http.StatusOK},
		{"preflight", http.MethodOptions, "/api/shorten", http.StatusNoContent},
		{"shorten wrong method", http.MethodGet, "/api/shorten", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestShortenRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemorySlidingWindow(&ratelimit.Config{Limit: 2, Window: time.Minute})
	h := newTestServer(okService(), limiter).Handler()

	for i := range 2 {
		if rec := post(h, "198.51.100.1"); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want 201", i+1, rec.Code)
		}
	}

	rec := post(h, "198.51.100.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get(ratelimit.HeaderLimit) != "2" {
		t.Errorf("%s = %q, want 2", ratelimit.HeaderLimit, rec.Header().Get(ratelimit.HeaderLimit))
	}

	if rec := post(h, "198.51.100.2"); rec.Code != http.StatusCreated {
		t.Errorf("other client status = %d, want 201", rec.Code)
	}

	// redirects are not throttled
	for range 5 {
		r := httptest.NewRequest(http.MethodGet, "/2Bi", nil)
		r.Header.Set("X-Real-IP", "198.51.100.1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		if rr.Code != http.StatusFound {
			t.Fatalf("redirect status = %d, want 302", rr.Code)
		}
		if rr.Header().Get(ratelimit.HeaderLimit) != "" {
			t.Fatal("redirect must not carry rate-limit headers")
		}
	}
}

func TestShortenUnthrottledWithoutLimiter(t *testing.T) {
	h := newTestServer(okService(), nil).Handler()

	for range 20 {
		rec := post(h, "198.51.100.1")
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
		if rec.Header().Get(ratelimit.HeaderLimit) != "" {
			t.Fatal("unexpected rate-limit header")
		}
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	s := newTestServer(okService(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}

func TestShutdown_NotStarted(t *testing.T) {
	s := newTestServer(okService(), nil)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v, want nil", err)
	}
}
