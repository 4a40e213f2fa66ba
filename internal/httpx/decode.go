package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// MaxRequestBodySize bounds request bodies. A maximal URL with every
// character JSON-escaped still fits.
const MaxRequestBodySize = 16 << 10

var (
	ErrEmptyBody        = errors.New("request body is empty")
	ErrTrailingData     = errors.New("request body contains multiple JSON objects")
	ErrBodyTooLarge     = fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
	ErrUnsupportedMedia = errors.New("Content-Type must be application/json")
)

// DecodeJSON decodes a single JSON object from the request body into T.
// Every failure is an errx.Invalid whose reason is safe to show to clients.
// A missing Content-Type is accepted; any other non-JSON type is rejected.
func DecodeJSON[T any](r *http.Request) (T, error) {
	const op = "httpx.DecodeJSON"
	var zero T

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return zero, errx.E(op, errx.Invalid, ErrUnsupportedMedia)
		}
	}

	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)
	defer func() {
		_ = r.Body.Close()
	}()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var v T
	if err := decoder.Decode(&v); err != nil {
		return zero, errx.E(op, errx.Invalid, decodeError(err))
	}

	if decoder.More() {
		return zero, errx.E(op, errx.Invalid, ErrTrailingData)
	}
	// a trailing non-JSON token is not reported by More
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return zero, errx.E(op, errx.Invalid, ErrTrailingData)
	}

	return v, nil
}

func decodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var unmarshalErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr):
		return ErrBodyTooLarge
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalErr):
		return fmt.Errorf("invalid value for field %q", unmarshalErr.Field)
	case errors.Is(err, io.EOF):
		return ErrEmptyBody
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errors.New("malformed JSON: unexpected end of input")
	default:
		return fmt.Errorf("invalid request body: %w", err)
	}
}
