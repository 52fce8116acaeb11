// Package history counts recent price observations for a catalog variant.
package history

import (
	"context"
	"time"

	"github.com/onnwee/cardpulse/internal/db"
	"github.com/onnwee/cardpulse/internal/signal"
)

// DefaultWindow is the lookback used when none is configured.
const DefaultWindow = signal.HistoryWindow

// Point is one observed price for a variant. Identity is
// (ItemKey, VariantRef, Window, ObservedAt).
type Point struct {
	ItemKey    string
	VariantRef string
	// Window is the provider aggregation window the price belongs to, for
	// example "1d" or "7d".
	Window     string
	ObservedAt time.Time
	PriceCents int64
}

// Store range-counts history points.
type Store interface {
	// CountPointsSince returns how many points for (itemKey, variantRef) have
	// ObservedAt >= since.
	CountPointsSince(ctx context.Context, itemKey, variantRef string, since time.Time) (int, error)
}

// Counter counts history points inside a lookback window.
type Counter struct {
	store  Store
	window time.Duration
}

// NewCounter creates a Counter. A non-positive window uses DefaultWindow.
func NewCounter(store Store, window time.Duration) *Counter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Counter{store: store, window: window}
}

// Window returns the lookback window.
func (c *Counter) Window() time.Duration {
	return c.window
}

// Count returns the number of points observed at or after now - window.
func (c *Counter) Count(ctx context.Context, itemKey, variantRef string, now time.Time) (int, error) {
	return c.CountSince(ctx, itemKey, variantRef, now.Add(-c.window))
}

// CountSince returns the number of points observed at or after since.
// Store failures are returned as *db.StoreError and never read as zero.
func (c *Counter) CountSince(ctx context.Context, itemKey, variantRef string, since time.Time) (int, error) {
	n, err := c.store.CountPointsSince(ctx, itemKey, variantRef, since)
	if err != nil {
		return 0, db.WrapStore("count history", itemKey+"/"+variantRef, err)
	}
	return n, nil
}
