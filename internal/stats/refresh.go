// Package stats tracks per-run counters for the signal refresh pipeline.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/onnwee/cardpulse/internal/signal"
)

// RefreshStats counts rows examined during one refresh run, split by
// whether the history gate let signals through.
// All operations are thread-safe using atomic counters.
type RefreshStats struct {
	examined     int64
	withSignals  int64
	insufficient int64
	pages        int64
}

// NewRefreshStats creates a zeroed RefreshStats.
func NewRefreshStats() *RefreshStats {
	return &RefreshStats{}
}

// RecordRow counts one written row. A row with at least one present signal
// counts as withSignals; a row below the history gate counts as insufficient.
func (s *RefreshStats) RecordRow(historyPoints int, sigs signal.Signals) {
	atomic.AddInt64(&s.examined, 1)
	if !signal.HasEnoughHistory(historyPoints) {
		atomic.AddInt64(&s.insufficient, 1)
		return
	}
	if sigs.AnyPresent() {
		atomic.AddInt64(&s.withSignals, 1)
	}
}

// RecordPage counts one fetched page.
func (s *RefreshStats) RecordPage() {
	atomic.AddInt64(&s.pages, 1)
}

// Examined returns the number of rows written.
func (s *RefreshStats) Examined() int64 {
	return atomic.LoadInt64(&s.examined)
}

// WithSignals returns the number of rows written with at least one signal.
func (s *RefreshStats) WithSignals() int64 {
	return atomic.LoadInt64(&s.withSignals)
}

// Insufficient returns the number of rows below the history gate.
func (s *RefreshStats) Insufficient() int64 {
	return atomic.LoadInt64(&s.insufficient)
}

// Pages returns the number of pages fetched.
func (s *RefreshStats) Pages() int64 {
	return atomic.LoadInt64(&s.pages)
}

// Reset zeroes all counters.
func (s *RefreshStats) Reset() {
	atomic.StoreInt64(&s.examined, 0)
	atomic.StoreInt64(&s.withSignals, 0)
	atomic.StoreInt64(&s.insufficient, 0)
	atomic.StoreInt64(&s.pages, 0)
}

func (s *RefreshStats) String() string {
	return fmt.Sprintf("examined=%d with_signals=%d insufficient_history=%d pages=%d",
		s.Examined(), s.WithSignals(), s.Insufficient(), s.Pages())
}

// LogSummary logs the counters at INFO level.
func (s *RefreshStats) LogSummary(logger *slog.Logger, provider string) {
	logger.Info("refresh statistics",
		"provider", provider,
		"examined", s.Examined(),
		"with_signals", s.WithSignals(),
		"insufficient_history", s.Insufficient(),
		"pages", s.Pages(),
	)
}
