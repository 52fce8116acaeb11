// Package validate provides input validation for the query parameters the
// cardpulse API accepts.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation errors.
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
	ErrNotInteger        = errors.New("value is not an integer")
	ErrOutOfRange        = errors.New("value is out of range")
)

// MaxSearchQueryLength bounds search queries in characters.
const MaxSearchQueryLength = 200

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length in characters (0 = no minimum)
	MaxLength      int            // Maximum length in characters (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex the whole string must match
	RejectControl  bool           // Whether control characters are rejected
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates s against the given constraints.
// Returns the validated (and optionally trimmed) string.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidCharacters)
	}

	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.RejectControl && strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: control character", ErrInvalidCharacters)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// SearchQuery validates a free text search query:
//   - Optional (a blank query is valid and returns "")
//   - At most MaxSearchQueryLength characters after trimming
//   - No control characters
func SearchQuery(q string) (string, error) {
	return String(q, StringConstraints{
		MaxLength:     MaxSearchQueryLength,
		RejectControl: true,
		AllowEmpty:    true,
		TrimSpace:     true,
	})
}

// OptionalCount parses a non-negative integer query parameter. An empty
// value is absent and returns nil.
func OptionalCount(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotInteger, raw)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %d is negative", ErrOutOfRange, n)
	}
	return &n, nil
}

// IntInRange parses an integer that must lie in [lo, hi].
func IntInRange(raw string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotInteger, raw)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, n, lo, hi)
	}
	return n, nil
}
