package search

import (
	"context"
	"log/slog"
	"time"
)

// Service ranks candidates fetched from a CandidateSource.
type Service struct {
	source  CandidateSource
	weights Weights
	logger  *slog.Logger
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(source CandidateSource, weights Weights, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, weights: weights, logger: logger}
}

// Search normalizes query, fetches candidates and returns at most limit
// ranked results. Source errors are returned unchanged.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	q := Normalize(query)
	if q == "" || limit <= 0 {
		return []Result{}, nil
	}

	start := time.Now()
	candidates, err := s.source.Candidates(ctx, q, MaxFetch)
	if err != nil {
		return nil, err
	}
	results := RankWithWeights(q, candidates, limit, s.weights)

	s.logger.DebugContext(ctx, "search ranked",
		slog.String("query", q),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)),
	)
	return results, nil
}
