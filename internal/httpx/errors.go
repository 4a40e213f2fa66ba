package httpx

import (
	"net/http"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// ErrorKindToStatus maps errx.Kind to HTTP status codes.
// Handlers can use this as a helper when mapping their own errors.
func ErrorKindToStatus(kind errx.Kind) int {
	switch kind {
	case errx.NotFound:
		return http.StatusNotFound
	case errx.Conflict:
		return http.StatusConflict
	case errx.Invalid:
		return http.StatusBadRequest
	case errx.RateLimited:
		return http.StatusTooManyRequests
	case errx.Unavailable:
		return http.StatusServiceUnavailable
	case errx.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindToCode maps errx.Kind to error codes for JSON responses.
// Handlers can use this as a helper when mapping their own errors.
func ErrorKindToCode(kind errx.Kind) string {
	switch kind {
	case errx.NotFound:
		return "not_found"
	case errx.Conflict:
		return "conflict"
	case errx.Invalid:
		return "invalid_input"
	case errx.RateLimited:
		return "rate_limited"
	case errx.Unavailable:
		return "unavailable"
	case errx.Internal:
		return "internal_error"
	default:
		return "internal_error"
	}
}

// WriteErrx writes the JSON error response for err using its errx kind.
// Internal and unknown kinds hide the underlying message behind fallback.
func WriteErrx(w http.ResponseWriter, err error, fallback string) {
	kind := errx.KindOf(err)
	status := ErrorKindToStatus(kind)

	message := fallback
	switch {
	case status < http.StatusInternalServerError:
		message = errx.Reason(err)
	case kind == errx.Unavailable:
		message = "service temporarily unavailable"
	}

	WriteError(w, status, ErrorKindToCode(kind), message, nil)
}
