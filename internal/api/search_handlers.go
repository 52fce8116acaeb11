package api

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/onnwee/cardpulse/internal/search"
	"github.com/onnwee/cardpulse/internal/validate"
)

// Search limits.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	MaxQueryLength     = validate.MaxSearchQueryLength
)

// Searcher ranks catalog candidates for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// SearchHandlers serves GET /search.
type SearchHandlers struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewSearchHandlers creates a new SearchHandlers instance. A nil logger uses slog.Default().
func NewSearchHandlers(searcher Searcher, logger *slog.Logger) *SearchHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandlers{searcher: searcher, logger: logger}
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// Search handles GET /search?q=&limit=.
// A blank query returns an empty result set; limit defaults to 20 and is capped at 100.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	query := r.URL.Query()
	q, err := validate.SearchQuery(query.Get("q"))
	if err != nil {
		writeCodedError(w, r, http.StatusBadRequest, ErrCodeValidation,
			"q must be at most "+strconv.Itoa(MaxQueryLength)+" printable characters")
		return
	}

	limit := DefaultSearchLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := validate.IntInRange(raw, 1, math.MaxInt32)
		if err != nil {
			writeCodedError(w, r, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxSearchLimit)
	}

	results, err := h.searcher.Search(r.Context(), q, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "search failed", "query", q, "error", err)
		writeCodedError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Search is temporarily unavailable")
		return
	}
	if results == nil {
		results = []search.Result{}
	}

	writeJSON(w, r, http.StatusOK, SearchResponse{
		Query:   q,
		Results: results,
		Count:   len(results),
	})
}
