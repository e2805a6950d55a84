// Package shortcode mints random short codes.
package shortcode

import (
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// DefaultAlphabet contains only URL-safe characters.
	DefaultAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	// DefaultLength gives 62^7 (about 3.5e12) possible codes.
	DefaultLength = 7
	// MaxLength matches the width of urls.short_code.
	MaxLength = 32
)

var (
	ErrEmptyAlphabet   = errors.New("alphabet must not be empty")
	ErrAlphabetTooLong = errors.New("alphabet must not exceed 255 symbols")
	ErrUnsafeAlphabet  = errors.New("alphabet must contain only unreserved url characters")
	ErrInvalidLength   = errors.New("length must be between 1 and 32")
)

// unreserved reports whether r may appear in a URL path segment unescaped (RFC 3986).
func unreserved(r rune) bool {
	switch {
	case r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		return true
	case r == '-', r == '_', r == '.', r == '~':
		return true
	default:
		return false
	}
}

// Generator produces candidate short codes. It does not check uniqueness.
type Generator struct {
	alphabet string
	length   int
}

// New validates the parameters once so that Generate never fails afterwards.
func New(alphabet string, length int) (*Generator, error) {
	const op = "shortcode.New"

	if alphabet == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyAlphabet)
	}
	if len([]rune(alphabet)) > 255 {
		return nil, fmt.Errorf("%s: %w", op, ErrAlphabetTooLong)
	}
	for _, r := range alphabet {
		if !unreserved(r) {
			return nil, fmt.Errorf("%s: %w: %q", op, ErrUnsafeAlphabet, r)
		}
	}
	if length <= 0 || length > MaxLength {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidLength)
	}

	return &Generator{
		alphabet: alphabet,
		length:   length,
	}, nil
}

// Generate returns a fresh random code.
func (g *Generator) Generate() string {
	return gonanoid.MustGenerate(g.alphabet, g.length)
}
