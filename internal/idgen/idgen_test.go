package idgen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sundayezeilo/shortlink/base62"
	"github.com/sundayezeilo/shortlink/internal/cache"
	"github.com/sundayezeilo/shortlink/internal/errx"
)

func TestIssuer_Next(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		counter   *mockCounter
		wantCode  string
		wantKind  errx.Kind
		wantErr   bool
		wantFloor bool
	}{
		{
			name: "encodes the incremented value",
			counter: &mockCounter{
				incrFn: func(ctx context.Context, key string) (int64, error) { return 10001, nil },
			},
			wantCode: "2Bj",
		},
		{
			name: "first value at floor",
			counter: &mockCounter{
				incrFn: func(ctx context.Context, key string) (int64, error) { return 10000, nil },
			},
			wantCode: "2Bi",
		},
		{
			name: "fresh counter bootstraps to floor",
			counter: &mockCounter{
				incrFn: func(ctx context.Context, key string) (int64, error) { return 1, nil },
			},
			wantCode:  "2Bi",
			wantFloor: true,
		},
		{
			name: "increment failure is unavailable",
			counter: &mockCounter{
				incrFn: func(ctx context.Context, key string) (int64, error) {
					return 0, errors.New("connection refused")
				},
			},
			wantErr:  true,
			wantKind: errx.Unavailable,
		},
		{
			name: "bootstrap write failure is unavailable",
			counter: &mockCounter{
				incrFn: func(ctx context.Context, key string) (int64, error) { return 1, nil },
				setFn: func(ctx context.Context, key, value string, ttl time.Duration) error {
					return errors.New("read only replica")
				},
			},
			wantErr:  true,
			wantKind: errx.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iss := NewIssuer(tt.counter, &IssuerConfig{Key: "k", Logger: discardLogger()})

			code, err := iss.Next(ctx)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if errx.KindOf(err) != tt.wantKind {
					t.Errorf("KindOf() = %v, want %v", errx.KindOf(err), tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Next() unexpected error: %v", err)
			}
			if code != tt.wantCode {
				t.Errorf("Next() = %q, want %q", code, tt.wantCode)
			}
			if tt.wantFloor {
				if tt.counter.setValue != "10000" {
					t.Errorf("bootstrap Set value = %q, want 10000", tt.counter.setValue)
				}
			} else if tt.counter.setCalls != 0 {
				t.Errorf("unexpected Set calls: %d", tt.counter.setCalls)
			}
		})
	}
}

func TestIssuer_Seed(t *testing.T) {
	ctx := context.Background()

	t.Run("writes floor minus one when missing", func(t *testing.T) {
		c := cache.NewMemory(time.Minute)
		iss := NewIssuer(c, &IssuerConfig{Key: "ctr", Logger: discardLogger()})

		seeded, err := iss.Seed(ctx)
		if err != nil {
			t.Fatalf("Seed() unexpected error: %v", err)
		}
		if !seeded {
			t.Fatal("expected Seed() to write")
		}

		code, err := iss.Next(ctx)
		if err != nil {
			t.Fatalf("Next() unexpected error: %v", err)
		}
		if code != "2Bi" {
			t.Errorf("first code after seed = %q, want 2Bi", code)
		}
	})

	t.Run("leaves an existing counter alone", func(t *testing.T) {
		c := cache.NewMemory(time.Minute)
		_ = c.Set(ctx, "ctr", "50000", 0)
		iss := NewIssuer(c, &IssuerConfig{Key: "ctr", Logger: discardLogger()})

		seeded, err := iss.Seed(ctx)
		if err != nil {
			t.Fatalf("Seed() unexpected error: %v", err)
		}
		if seeded {
			t.Error("expected Seed() to skip an existing counter")
		}

		v, _, _ := c.Get(ctx, "ctr")
		if v != "50000" {
			t.Errorf("counter = %q, want 50000", v)
		}
	})

	t.Run("backend failure is unavailable", func(t *testing.T) {
		iss := NewIssuer(&mockCounter{
			setNXFn: func(ctx context.Context, key, value string) (bool, error) {
				return false, errors.New("timeout")
			},
		}, &IssuerConfig{Logger: discardLogger()})

		_, err := iss.Seed(ctx)
		if errx.KindOf(err) != errx.Unavailable {
			t.Errorf("KindOf() = %v, want %v", errx.KindOf(err), errx.Unavailable)
		}
	})
}

func TestIssuer_NextConcurrent(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory(time.Minute)
	iss := NewIssuer(c, &IssuerConfig{Key: "ctr", Logger: discardLogger()})

	if _, err := iss.Seed(ctx); err != nil {
		t.Fatalf("Seed() unexpected error: %v", err)
	}

	const workers, perWorker = 8, 250

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				code, err := iss.Next(ctx)
				if err != nil {
					t.Errorf("Next() unexpected error: %v", err)
					return
				}
				mu.Lock()
				if _, dup := seen[code]; dup {
					t.Errorf("duplicate code issued: %s", code)
				}
				seen[code] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("distinct codes = %d, want %d", len(seen), workers*perWorker)
	}

	for code := range seen {
		n, err := base62.Decode(code)
		if err != nil {
			t.Fatalf("Decode(%q) unexpected error: %v", code, err)
		}
		if n < DefaultFloor || n >= DefaultFloor+workers*perWorker {
			t.Errorf("code %q decodes to %d, outside issued range", code, n)
		}
	}
}

func TestNewIssuer_Defaults(t *testing.T) {
	iss := NewIssuer(&mockCounter{}, nil)

	if iss.key != "shortener:id_counter" {
		t.Errorf("key = %q, want shortener:id_counter", iss.key)
	}
	if iss.floor != DefaultFloor {
		t.Errorf("floor = %d, want %d", iss.floor, DefaultFloor)
	}
	if iss.logger == nil {
		t.Error("expected default logger")
	}
}

/***************
 * Mocks
 ***************/

type mockCounter struct {
	incrFn  func(ctx context.Context, key string) (int64, error)
	setFn   func(ctx context.Context, key, value string, ttl time.Duration) error
	setNXFn func(ctx context.Context, key, value string) (bool, error)

	setCalls int
	setValue string
}

func (m *mockCounter) Incr(ctx context.Context, key string) (int64, error) {
	if m.incrFn != nil {
		return m.incrFn(ctx, key)
	}
	return 0, errors.New("incr not implemented")
}

func (m *mockCounter) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.setCalls++
	m.setValue = value
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	return nil
}

func (m *mockCounter) SetNX(ctx context.Context, key, value string) (bool, error) {
	if m.setNXFn != nil {
		return m.setNXFn(ctx, key, value)
	}
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return false, err
	}
	return true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
