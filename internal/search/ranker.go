// Package search ranks catalog candidates against a free-text query.
//
// A candidate's composite score is Primary*nameScore + Secondary*best
// secondary-field score, where each field score is PrefixMatch,
// ContainsMatch or NoMatch. Aliases are scored separately on the whole query
// and only surface a candidate that did not match its own fields. Results are totally ordered by
// score descending, then name, set and key ascending.
package search

import (
	"sort"
	"strings"
)

// Candidate is one searchable catalog entry.
type Candidate struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	SetName string   `json:"set_name,omitempty"`
	Number  string   `json:"number,omitempty"`
	Year    string   `json:"year,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

// Result is a ranked candidate.
type Result struct {
	Candidate
	Score        int    `json:"score"`
	ViaAlias     bool   `json:"via_alias,omitempty"`
	MatchedAlias string `json:"matched_alias,omitempty"`
}

// Weights are the multipliers of the composite score.
type Weights struct {
	Primary   int `json:"primary"`
	Secondary int `json:"secondary"`
}

// DefaultWeights weights the display name ten times over secondary fields.
func DefaultWeights() Weights {
	return Weights{Primary: 10, Secondary: 1}
}

// Rank scores candidates against query with the default weights and returns
// at most limit results. An empty query or a non-positive limit yields an
// empty result.
func Rank(query string, candidates []Candidate, limit int) []Result {
	return RankWithWeights(query, candidates, limit, DefaultWeights())
}

// RankWithWeights is Rank with explicit weights.
func RankWithWeights(query string, candidates []Candidate, limit int, w Weights) []Result {
	q := Normalize(query)
	if q == "" || limit <= 0 {
		return []Result{}
	}
	tokens := strings.Fields(q)

	best := make(map[string]Result, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, c := range candidates {
		r, ok := score(c, q, tokens, w)
		if !ok {
			continue
		}
		prev, seen := best[c.Key]
		if !seen {
			order = append(order, c.Key)
			best[c.Key] = r
			continue
		}
		if preferred(r, prev) {
			best[c.Key] = r
		}
	}

	results := make([]Result, 0, len(order))
	for _, k := range order {
		results = append(results, best[k])
	}
	sort.Slice(results, func(i, j int) bool { return less(results[i], results[j]) })

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// score returns the direct representation when the candidate matches on its
// own fields, then its best alias phrase, then a tokenized match over the
// direct fields.
func score(c Candidate, q string, tokens []string, w Weights) (Result, bool) {
	primary := FieldScore(c.Name, q)
	secondary := max(FieldScore(c.SetName, q), FieldScore(c.Number, q), FieldScore(c.Year, q))
	if s := w.Primary*primary + w.Secondary*secondary; s > 0 {
		return Result{Candidate: c, Score: s}, true
	}

	if bestAlias, aliasScore := bestAliasMatch(c.Aliases, q); aliasScore > NoMatch {
		return Result{
			Candidate:    c,
			Score:        w.Primary * aliasScore,
			ViaAlias:     true,
			MatchedAlias: bestAlias,
		}, true
	}

	if len(tokens) > 1 && MatchTokens(c, tokens) {
		// Tokenized match: name scored on the leading token.
		s := w.Primary*FieldScore(c.Name, tokens[0]) + w.Secondary*ContainsMatch
		if s > 0 {
			return Result{Candidate: c, Score: s}, true
		}
	}
	return Result{}, false
}

// bestAliasMatch returns the first alias with the highest FieldScore for q.
func bestAliasMatch(aliases []string, q string) (string, int) {
	best, bestScore := "", NoMatch
	for _, a := range aliases {
		if s := FieldScore(a, q); s > bestScore {
			best, bestScore = a, s
		}
	}
	return best, bestScore
}

// preferred reports whether r should replace prev for the same key.
func preferred(r, prev Result) bool {
	if r.ViaAlias != prev.ViaAlias {
		return !r.ViaAlias
	}
	if r.Score != prev.Score {
		return r.Score > prev.Score
	}
	return less(r, prev)
}

func less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if c := compareFold(a.Name, b.Name); c != 0 {
		return c < 0
	}
	if c := compareFold(a.SetName, b.SetName); c != 0 {
		return c < 0
	}
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	if a.ViaAlias != b.ViaAlias {
		return !a.ViaAlias
	}
	return a.MatchedAlias < b.MatchedAlias
}

// compareFold orders case-insensitively, breaking ties on the raw bytes.
func compareFold(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
