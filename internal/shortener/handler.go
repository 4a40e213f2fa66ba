package shortener

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
)

const (
	DefaultNotFoundPath = "/?error=not-found"
	internalErrorMsg    = "Internal server error"
)

// ShortenRequest represents the JSON request body for shortening a URL.
type ShortenRequest struct {
	URL string `json:"url"`
}

// ShortenResponse represents the JSON response for a shortened URL.
type ShortenResponse struct {
	Success   bool   `json:"success"`
	ShortURL  string `json:"shortUrl"`
	ShortCode string `json:"shortCode"`
}

// LinkRecord is the public shape of a stored link.
type LinkRecord struct {
	ID          int64  `json:"id"`
	OriginalURL string `json:"originalUrl"`
	ShortCode   string `json:"shortCode"`
	Visits      int64  `json:"visits"`
	CreatedAt   string `json:"createdAt"`
}

// Handler provides HTTP handlers for the URL shortener service.
type Handler struct {
	service     Service
	logger      *slog.Logger
	notFoundURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service      Service
	Logger       *slog.Logger
	BaseURL      string // e.g. "https://short.ly"
	NotFoundPath string // landing target for unknown codes, default "/?error=not-found"
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	notFoundPath := cfg.NotFoundPath
	if notFoundPath == "" {
		notFoundPath = DefaultNotFoundPath
	}

	return &Handler{
		service:     cfg.Service,
		logger:      logger,
		notFoundURL: strings.TrimRight(cfg.BaseURL, "/") + notFoundPath,
	}
}

// Shorten handles POST /api/shorten. A new link answers 201, an existing
// mapping for the same URL answers 200.
func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger := h.logger.With(
		"request_id", httpx.GetRequestID(ctx),
		"method", r.Method,
		"path", r.URL.Path,
	)

	req, err := httpx.DecodeJSON[ShortenRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", errx.Reason(err), nil)
		return
	}

	res, err := h.service.Create(ctx, req.URL)
	if err != nil {
		h.handleError(ctx, logger, w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		logger.InfoContext(ctx, "link created", "short_code", res.ShortCode)
	}

	httpx.WriteJSON(w, status, ShortenResponse{
		Success:   true,
		ShortURL:  res.ShortURL,
		ShortCode: res.ShortCode,
	})
}

// Redirect handles GET /{code}. Unknown or malformed codes are sent to the
// landing page rather than answered with 404.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PathValue("code")

	target, err := h.service.Resolve(ctx, code)
	if err != nil {
		if errx.Is(err, errx.NotFound) {
			h.logger.DebugContext(ctx, "short code not found",
				"request_id", httpx.GetRequestID(ctx),
				"short_code", code,
			)
			httpx.Redirect(w, r, h.notFoundURL)
			return
		}

		h.handleError(ctx, h.logger.With("request_id", httpx.GetRequestID(ctx), "short_code", code), w, err)
		return
	}

	httpx.Redirect(w, r, target)
}

// GetLink handles GET /api/links/{code}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PathValue("code")

	link, err := h.service.GetByCode(ctx, code)
	if err != nil {
		h.handleError(ctx, h.logger.With("request_id", httpx.GetRequestID(ctx), "short_code", code), w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toLinkRecord(link))
}

func (h *Handler) handleError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	switch kind {
	case errx.Invalid, errx.NotFound:
		logger.WarnContext(ctx, "request rejected", logAttrs...)
	default:
		logger.ErrorContext(ctx, "request failed", logAttrs...)
	}

	if msg := ValidationMessage(err); msg != "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorKindToCode(errx.Invalid), msg, nil)
		return
	}
	httpx.WriteErrx(w, err, internalErrorMsg)
}

func toLinkRecord(l Link) LinkRecord {
	return LinkRecord{
		ID:          l.ID,
		OriginalURL: l.OriginalURL,
		ShortCode:   l.ShortCode,
		Visits:      l.Visits,
		CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
	}
}
