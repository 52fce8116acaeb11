package search

import "strings"

// Field match scores.
const (
	NoMatch       = 0
	ContainsMatch = 1
	PrefixMatch   = 2
)

// Normalize lower-cases q and collapses runs of whitespace to single spaces.
func Normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// FieldScore scores a single field against an already normalized query:
// PrefixMatch if the field starts with it, ContainsMatch if it merely
// contains it, NoMatch otherwise. An empty query or field never matches.
func FieldScore(field, normalizedQuery string) int {
	if normalizedQuery == "" || field == "" {
		return NoMatch
	}
	f := Normalize(field)
	switch {
	case strings.HasPrefix(f, normalizedQuery):
		return PrefixMatch
	case strings.Contains(f, normalizedQuery):
		return ContainsMatch
	default:
		return NoMatch
	}
}
