package httpx

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

type shortenBody struct {
	URL string `json:"url"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantErr     error
		wantReason  string
		wantURL     string
	}{
		{
			name:        "valid body",
			body:        `{"url":"https://example.com/a?b=c"}`,
			contentType: "application/json",
			wantURL:     "https://example.com/a?b=c",
		},
		{
			name:        "content type with charset",
			body:        `{"url":"https://example.com"}`,
			contentType: "application/json; charset=utf-8",
			wantURL:     "https://example.com",
		},
		{
			name:    "missing content type is accepted",
			body:    `{"url":"https://example.com"}`,
			wantURL: "https://example.com",
		},
		{
			name:    "trailing whitespace is accepted",
			body:    "{\"url\":\"https://example.com\"}\n  ",
			wantURL: "https://example.com",
		},
		{
			name:        "form content type",
			body:        `url=https://example.com`,
			contentType: "application/x-www-form-urlencoded",
			wantErr:     ErrUnsupportedMedia,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: ErrEmptyBody,
		},
		{
			name:       "truncated object",
			body:       `{"url":`,
			wantReason: "malformed JSON",
		},
		{
			name:       "missing quote",
			body:       `{"url":"https://example.com}`,
			wantReason: "malformed JSON",
		},
		{
			name:       "trailing comma",
			body:       `{"url":"https://example.com",}`,
			wantReason: "malformed JSON",
		},
		{
			name:       "unknown field",
			body:       `{"url":"https://example.com","alias":"mine"}`,
			wantReason: "unknown field",
		},
		{
			name:       "url is not a string",
			body:       `{"url":42}`,
			wantReason: `invalid value for field "url"`,
		},
		{
			name:    "two objects",
			body:    `{"url":"https://a.example"}{"url":"https://b.example"}`,
			wantErr: ErrTrailingData,
		},
		{
			name:    "trailing garbage",
			body:    `{"url":"https://example.com"}extra`,
			wantErr: ErrTrailingData,
		},
		{
			name:    "trailing closing brace",
			body:    `{"url":"https://example.com"}}`,
			wantErr: ErrTrailingData,
		},
		{
			name:    "body too large",
			body:    `{"url":"https://example.com/` + strings.Repeat("x", MaxRequestBodySize) + `"}`,
			wantErr: ErrBodyTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/shorten", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			got, err := DecodeJSON[shortenBody](req)

			if tt.wantErr == nil && tt.wantReason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.URL != tt.wantURL {
					t.Errorf("URL = %q, want %q", got.URL, tt.wantURL)
				}
				return
			}

			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if errx.KindOf(err) != errx.Invalid {
				t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Invalid)
			}
			if errx.OpOf(err) != "httpx.DecodeJSON" {
				t.Errorf("OpOf(err) = %q, want httpx.DecodeJSON", errx.OpOf(err))
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantReason != "" && !strings.Contains(errx.Reason(err), tt.wantReason) {
				t.Errorf("Reason = %q, want it to contain %q", errx.Reason(err), tt.wantReason)
			}
			if got != (shortenBody{}) {
				t.Errorf("expected zero value on error, got %+v", got)
			}
		})
	}
}

func TestDecodeJSON_ClosesBody(t *testing.T) {
	body := &testReadCloser{
		Reader: strings.NewReader(`{"url":"https://example.com"}`),
	}

	req := httptest.NewRequest("POST", "/api/shorten", body)

	if _, err := DecodeJSON[shortenBody](req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !body.closed {
		t.Error("expected body to be closed")
	}
}

// testReadCloser helps verify that body is closed
type testReadCloser struct {
	io.Reader
	closed bool
}

func (t *testReadCloser) Close() error {
	t.closed = true
	return nil
}
