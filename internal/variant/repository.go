package variant

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/cardpulse/internal/db"
)

// Repository reads and writes variant-metric rows.
type Repository interface {
	// ListPage returns up to limit rows for (provider, grade) ordered by
	// (item_key, variant_ref, printing_id), skipping offset rows. Consecutive
	// pages neither skip nor repeat a row while no sort key changes.
	ListPage(ctx context.Context, provider, grade string, offset, limit int) ([]Record, error)

	// UpdateSignals applies u to the row identified by key. A missing row
	// returns db.ErrNotFound.
	UpdateSignals(ctx context.Context, key Key, u SignalUpdate) error

	// RefreshSignalsBulk runs the store-side recomputation for
	// (provider, grade) and returns the number of rows it touched.
	RefreshSignalsBulk(ctx context.Context, provider, grade string, now time.Time, window time.Duration) (int, error)
}

// BulkRefreshFunc stands in for the store-side procedure of an
// InMemoryRepository.
type BulkRefreshFunc func(ctx context.Context, provider, grade string, now time.Time, window time.Duration) (int, error)

// InMemoryRepository is an in-memory Repository for tests and local runs.
type InMemoryRepository struct {
	mu      sync.RWMutex
	rows    map[Key]Record
	updates map[Key]int
	bulk    BulkRefreshFunc
}

// NewInMemoryRepository creates an empty repository whose bulk refresh
// reports zero rows.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		rows:    make(map[Key]Record),
		updates: make(map[Key]int),
	}
}

// SetBulkRefresh replaces the bulk refresh behaviour.
func (r *InMemoryRepository) SetBulkRefresh(fn BulkRefreshFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulk = fn
}

// Upsert records provider statistics for a variant, creating the row on
// first report. Derived fields of an existing row are kept.
func (r *InMemoryRepository) Upsert(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := rec.clone()
	if prev, ok := r.rows[rec.Key]; ok {
		next.HistoryPoints30d = prev.HistoryPoints30d
		next.SignalTrend = prev.SignalTrend
		next.SignalBreakout = prev.SignalBreakout
		next.SignalValue = prev.SignalValue
		next.SignalsAsOf = prev.SignalsAsOf
		next.UpdatedAt = prev.UpdatedAt
	}
	r.rows[rec.Key] = next
}

// Get returns a copy of the row for key.
func (r *InMemoryRepository) Get(key Key) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rows[key]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// All returns copies of every row, ordered by key.
func (r *InMemoryRepository) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.rows))
	for _, rec := range r.rows {
		out = append(out, rec.clone())
	}
	sortRecords(out)
	return out
}

// UpdateCounts returns how many times each row has been updated.
func (r *InMemoryRepository) UpdateCounts() map[Key]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Key]int, len(r.updates))
	for k, v := range r.updates {
		out[k] = v
	}
	return out
}

// ListPage implements Repository.
func (r *InMemoryRepository) ListPage(_ context.Context, provider, grade string, offset, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset < 0 || limit <= 0 {
		return nil, nil
	}

	var matched []Record
	for k, rec := range r.rows {
		if k.Provider == provider && k.Grade == grade {
			matched = append(matched, rec)
		}
	}
	sortRecords(matched)

	if offset >= len(matched) {
		return nil, nil
	}
	end := min(offset+limit, len(matched))
	page := make([]Record, 0, end-offset)
	for _, rec := range matched[offset:end] {
		page = append(page, rec.clone())
	}
	return page, nil
}

// UpdateSignals implements Repository.
func (r *InMemoryRepository) UpdateSignals(_ context.Context, key Key, u SignalUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.rows[key]
	if !ok {
		return db.ErrNotFound
	}
	u.apply(&rec)
	r.rows[key] = rec
	r.updates[key]++
	return nil
}

// RefreshSignalsBulk implements Repository.
func (r *InMemoryRepository) RefreshSignalsBulk(ctx context.Context, provider, grade string, now time.Time, window time.Duration) (int, error) {
	r.mu.RLock()
	fn := r.bulk
	r.mu.RUnlock()

	if fn == nil {
		return 0, nil
	}
	return fn(ctx, provider, grade, now, window)
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key.less(recs[j].Key) })
}
