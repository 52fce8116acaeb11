package search

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/tracing"
)

// MaxFetch caps how many candidates a source returns for one query.
const MaxFetch = 500

// CandidateSource fetches candidates that may match a normalized query.
// Sources may over-fetch; Rank does the final filtering.
type CandidateSource interface {
	Candidates(ctx context.Context, normalizedQuery string, max int) ([]Candidate, error)
}

// InMemoryCandidateSource holds a fixed candidate set.
type InMemoryCandidateSource struct {
	mu         sync.RWMutex
	candidates []Candidate
}

// NewInMemoryCandidateSource creates a source over a copy of candidates.
func NewInMemoryCandidateSource(candidates ...Candidate) *InMemoryCandidateSource {
	s := &InMemoryCandidateSource{}
	s.Add(candidates...)
	return s
}

// Add appends candidates.
func (s *InMemoryCandidateSource) Add(candidates ...Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		c.Aliases = append([]string(nil), c.Aliases...)
		s.candidates = append(s.candidates, c)
	}
}

// Candidates returns the stored candidates whose own fields contain every
// query token, or that carry an alias containing the whole query. Matches are
// ordered by match quality before max applies, so the best candidates survive
// the cut.
func (s *InMemoryCandidateSource) Candidates(_ context.Context, normalizedQuery string, max int) ([]Candidate, error) {
	tokens := strings.Fields(normalizedQuery)
	if len(tokens) == 0 {
		return nil, nil
	}
	if max <= 0 || max > MaxFetch {
		max = MaxFetch
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Candidate
	for _, c := range s.candidates {
		if !MatchTokens(c, tokens) && !aliasContains(c.Aliases, normalizedQuery) {
			continue
		}
		c.Aliases = append([]string(nil), c.Aliases...)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return prefilterLess(out[i], out[j], normalizedQuery, tokens[0])
	})
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func aliasContains(aliases []string, q string) bool {
	for _, a := range aliases {
		if strings.Contains(Normalize(a), q) {
			return true
		}
	}
	return false
}

// matchTier is the prefilter's view of match quality: the best of name and
// alias phrase scores, the name phrase score, the name score on the leading
// token, then the best secondary field score.
type matchTier [4]int

func tierOf(c Candidate, q, lead string) matchTier {
	name := FieldScore(c.Name, q)
	_, alias := bestAliasMatch(c.Aliases, q)
	phrase := name
	if alias > phrase {
		phrase = alias
	}
	secondary := FieldScore(c.SetName, q)
	for _, f := range []string{c.Number, c.Year} {
		if fs := FieldScore(f, q); fs > secondary {
			secondary = fs
		}
	}
	return matchTier{phrase, name, FieldScore(c.Name, lead), secondary}
}

// prefilterLess orders candidates by descending match tier, then lowercased
// name and key. PostgresCandidateSource uses the same ordering in SQL.
func prefilterLess(a, b Candidate, q, lead string) bool {
	ta, tb := tierOf(a, q, lead), tierOf(b, q, lead)
	for i := range ta {
		if ta[i] != tb[i] {
			return ta[i] > tb[i]
		}
	}
	if an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name); an != bn {
		return an < bn
	}
	return a.Key < b.Key
}

// PostgresCandidateSource reads candidates from the card_search table.
type PostgresCandidateSource struct {
	db *sql.DB
}

// NewPostgresCandidateSource creates a PostgresCandidateSource.
func NewPostgresCandidateSource(db *sql.DB) *PostgresCandidateSource {
	return &PostgresCandidateSource{db: db}
}

// Candidates prefilters with ILIKE on the search document (every token must
// appear) or on any alias (the whole query must appear). Rows are ordered by
// match quality before the limit, matching InMemoryCandidateSource.
func (s *PostgresCandidateSource) Candidates(ctx context.Context, normalizedQuery string, max int) (out []Candidate, err error) {
	tokens := strings.Fields(normalizedQuery)
	if len(tokens) == 0 {
		return nil, nil
	}
	if max <= 0 || max > MaxFetch {
		max = MaxFetch
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "card_search", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	patterns := make([]string, len(tokens))
	for i, tok := range tokens {
		patterns[i] = "%" + escapeLike(tok) + "%"
	}

	// $2 and $4 are the contains and prefix patterns of the whole query, $6
	// and $5 those of the leading token.
	query := `
		WITH matched AS (
			SELECT card_key, name, set_name, number, year, aliases,
				CASE WHEN lower(name) LIKE $4 THEN 2 WHEN lower(name) LIKE $2 THEN 1 ELSE 0 END AS name_tier,
				CASE
					WHEN EXISTS (SELECT 1 FROM unnest(aliases) AS a WHERE lower(a) LIKE $4) THEN 2
					WHEN EXISTS (SELECT 1 FROM unnest(aliases) AS a WHERE lower(a) LIKE $2) THEN 1
					ELSE 0
				END AS alias_tier,
				CASE WHEN lower(name) LIKE $5 THEN 2 WHEN lower(name) LIKE $6 THEN 1 ELSE 0 END AS lead_tier,
				CASE
					WHEN lower(set_name) LIKE $4 OR lower(number) LIKE $4 OR year::text LIKE $4 THEN 2
					WHEN lower(set_name) LIKE $2 OR lower(number) LIKE $2 OR year::text LIKE $2 THEN 1
					ELSE 0
				END AS secondary_tier
			FROM card_search
			WHERE search_document ILIKE ALL ($1)
			   OR EXISTS (SELECT 1 FROM unnest(aliases) AS a WHERE lower(a) LIKE $2)
		)
		SELECT card_key, name, set_name, number, year, aliases
		FROM matched
		ORDER BY GREATEST(name_tier, alias_tier) DESC, name_tier DESC, lead_tier DESC,
			secondary_tier DESC, lower(name), card_key
		LIMIT $3
	`

	q, lead := escapeLike(normalizedQuery), escapeLike(tokens[0])
	rows, err := s.db.QueryContext(ctx, query,
		pq.Array(patterns),
		"%"+q+"%",
		max,
		q+"%",
		lead+"%",
		"%"+lead+"%",
	)
	if err != nil {
		return nil, db.WrapStore("list search candidates", normalizedQuery, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c       Candidate
			setName sql.NullString
			number  sql.NullString
			year    sql.NullInt64
		)
		if err := rows.Scan(&c.Key, &c.Name, &setName, &number, &year, pq.Array(&c.Aliases)); err != nil {
			return nil, db.WrapStore("scan search candidate", "", err)
		}
		c.SetName = setName.String
		c.Number = number.String
		if year.Valid {
			c.Year = fmt.Sprintf("%d", year.Int64)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, db.WrapStore("iterate search candidates", "", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
