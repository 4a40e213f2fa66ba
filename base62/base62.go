// Package base62 converts positive integers to compact, URL-safe short codes
// and back. The alphabet is 0-9, then a-z, then A-Z, giving digit values 0-61.
// All functions are pure and safe for concurrent use.
package base62

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	base     = int64(len(alphabet))

	// MaxCodeLength is the longest short code accepted by Valid.
	MaxCodeLength = 12
)

// ErrInvalidInput is returned for values outside the codec's domain.
var ErrInvalidInput = errors.New("base62: invalid input")

// Encode returns the positional base-62 representation of n without padding.
func Encode(n int64) (string, error) {
	if n < 1 {
		return "", fmt.Errorf("%w: expected positive integer, got %d", ErrInvalidInput, n)
	}

	var buf [MaxCodeLength]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = alphabet[n%base]
		n /= base
	}
	return string(buf[i:]), nil
}

// EncodeFloat encodes a number that arrived as a float (e.g. from JSON).
// Non-integral values are rejected instead of truncated.
func EncodeFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return "", fmt.Errorf("%w: expected integer, got %v", ErrInvalidInput, f)
	}
	if f < 1 || f >= math.MaxInt64 {
		return "", fmt.Errorf("%w: expected positive integer, got %v", ErrInvalidInput, f)
	}
	return Encode(int64(f))
}

// Decode is the inverse of Encode.
func Decode(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidInput)
	}

	var n int64
	for _, c := range s {
		d := strings.IndexRune(alphabet, c)
		if d < 0 {
			return 0, fmt.Errorf("%w: invalid character %q", ErrInvalidInput, c)
		}
		if n > (math.MaxInt64-int64(d))/base {
			return 0, fmt.Errorf("%w: %q overflows int64", ErrInvalidInput, s)
		}
		n = n*base + int64(d)
	}
	return n, nil
}

// Valid reports whether s could be a short code: non-empty, at most
// MaxCodeLength characters, alphabet only.
func Valid(s string) bool {
	if s == "" || len(s) > MaxCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
