package history

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/cardpulse/internal/db"
)

type seriesKey struct {
	itemKey    string
	variantRef string
}

type pointKey struct {
	window     string
	observedAt int64
}

// InMemoryStore is an in-memory Store for tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	series map[seriesKey]map[pointKey]Point
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{series: make(map[seriesKey]map[pointKey]Point)}
}

// Add stores a point. A second point with the same identity returns
// db.ErrDuplicateKey.
func (s *InMemoryStore) Add(p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := seriesKey{p.ItemKey, p.VariantRef}
	pts, ok := s.series[sk]
	if !ok {
		pts = make(map[pointKey]Point)
		s.series[sk] = pts
	}
	pk := pointKey{p.Window, p.ObservedAt.UnixNano()}
	if _, exists := pts[pk]; exists {
		return db.ErrDuplicateKey
	}
	pts[pk] = p
	return nil
}

// CountPointsSince implements Store.
func (s *InMemoryStore) CountPointsSince(_ context.Context, itemKey, variantRef string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.series[seriesKey{itemKey, variantRef}] {
		if !p.ObservedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Len returns the total number of stored points.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, pts := range s.series {
		n += len(pts)
	}
	return n
}
