package refresh

import (
	"errors"
	"time"

	"github.com/onnwee/cardpulse/internal/signal"
	"github.com/onnwee/cardpulse/internal/variant"
)

// DefaultPageSize is the number of rows fetched per page.
const DefaultPageSize = 250

var (
	// ErrNoProvider is returned when a run context names no provider.
	ErrNoProvider = errors.New("refresh: provider is required")
	// ErrInvalidPageSize is returned for a non-positive page size.
	ErrInvalidPageSize = errors.New("refresh: page size must be positive")
)

// Clock returns the current time.
type Clock func() time.Time

// SystemClock reads the wall clock.
func SystemClock() time.Time { return time.Now() }

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// Options configure a run. Zero values take defaults.
type Options struct {
	Provider      string
	Grade         string
	PageSize      int
	HistoryWindow time.Duration
}

// RunContext carries everything a single run depends on. Runs built from the
// same RunContext against the same data produce identical rows.
type RunContext struct {
	Now           time.Time
	Provider      string
	Grade         string
	PageSize      int
	HistoryWindow time.Duration
}

// NewRunContext reads clock once and applies defaults to opts.
func NewRunContext(clock Clock, opts Options) RunContext {
	if clock == nil {
		clock = SystemClock
	}
	rc := RunContext{
		Now:           clock().UTC(),
		Provider:      opts.Provider,
		Grade:         opts.Grade,
		PageSize:      opts.PageSize,
		HistoryWindow: opts.HistoryWindow,
	}
	if rc.Grade == "" {
		rc.Grade = variant.RawGrade
	}
	if rc.PageSize == 0 {
		rc.PageSize = DefaultPageSize
	}
	if rc.HistoryWindow <= 0 {
		rc.HistoryWindow = signal.HistoryWindow
	}
	return rc
}

// Validate checks rc before a run touches the store.
func (rc RunContext) Validate() error {
	if rc.Provider == "" {
		return ErrNoProvider
	}
	if rc.PageSize <= 0 {
		return ErrInvalidPageSize
	}
	return nil
}

// HistoryBoundary is the earliest observation counted by the run.
func (rc RunContext) HistoryBoundary() time.Time {
	return rc.Now.Add(-rc.HistoryWindow)
}
