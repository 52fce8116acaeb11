// Package variant stores per-variant market statistics and the derived
// signals the refresh pipeline writes back to them.
package variant

import (
	"errors"
	"fmt"
	"time"

	"github.com/onnwee/cardpulse/internal/signal"
)

// RawGrade is the grade bucket of ungraded copies.
const RawGrade = "RAW"

var (
	// ErrGateViolation is returned when an update carries derived signals
	// for a row below the minimum history depth.
	ErrGateViolation = errors.New("derived signals require sufficient history")

	// ErrInvalidUpdate is returned for structurally invalid updates.
	ErrInvalidUpdate = errors.New("invalid signal update")
)

// Key identifies one (item, variant, printing, provider, grade) row.
type Key struct {
	ItemKey    string `json:"item_key"`
	VariantRef string `json:"variant_ref"`
	PrintingID string `json:"printing_id"`
	Provider   string `json:"provider"`
	Grade      string `json:"grade"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s@%s:%s", k.ItemKey, k.VariantRef, k.PrintingID, k.Provider, k.Grade)
}

// less orders by (item, variant, printing), then provider and grade.
func (k Key) less(o Key) bool {
	switch {
	case k.ItemKey != o.ItemKey:
		return k.ItemKey < o.ItemKey
	case k.VariantRef != o.VariantRef:
		return k.VariantRef < o.VariantRef
	case k.PrintingID != o.PrintingID:
		return k.PrintingID < o.PrintingID
	case k.Provider != o.Provider:
		return k.Provider < o.Provider
	default:
		return k.Grade < o.Grade
	}
}

// Record is one variant-metric row.
type Record struct {
	Key

	// Provider-supplied statistics.
	TrendSlope7d            *float64 `json:"trend_slope_7d,omitempty"`
	CovPrice30d             *float64 `json:"cov_price_30d,omitempty"`
	PriceRelativeTo30dRange *float64 `json:"price_relative_to_30d_range,omitempty"`
	PriceChangesCount30d    *int     `json:"price_changes_count_30d,omitempty"`

	// Derived fields, owned by the refresh pipeline.
	HistoryPoints30d int        `json:"history_points_30d"`
	SignalTrend      *float64   `json:"signal_trend,omitempty"`
	SignalBreakout   *float64   `json:"signal_breakout,omitempty"`
	SignalValue      *float64   `json:"signal_value,omitempty"`
	SignalsAsOf      *time.Time `json:"signals_as_of,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Inputs returns the signal inputs of r with the given history depth.
func (r Record) Inputs(historyPoints int) signal.Inputs {
	return signal.Inputs{
		TrendSlope7d:            r.TrendSlope7d,
		CovPrice30d:             r.CovPrice30d,
		PriceRelativeTo30dRange: r.PriceRelativeTo30dRange,
		PriceChangesCount30d:    r.PriceChangesCount30d,
		HistoryPoints30d:        historyPoints,
	}
}

// SignalUpdate is the partial write the pipeline applies to one row. Fields
// not listed here are never touched.
type SignalUpdate struct {
	HistoryPoints30d int
	SignalTrend      *float64
	SignalBreakout   *float64
	SignalValue      *float64
	SignalsAsOf      *time.Time
	UpdatedAt        time.Time
}

// NewSignalUpdate builds the update for freshly computed signals.
// SignalsAsOf is set to now only when the history gate holds.
func NewSignalUpdate(historyPoints int, s signal.Signals, now time.Time) SignalUpdate {
	u := SignalUpdate{
		HistoryPoints30d: historyPoints,
		UpdatedAt:        now,
	}
	if !signal.HasEnoughHistory(historyPoints) {
		return u
	}
	u.SignalTrend = s.Trend.Ptr()
	u.SignalBreakout = s.Breakout.Ptr()
	u.SignalValue = s.Value.Ptr()
	asOf := now
	u.SignalsAsOf = &asOf
	return u
}

// Validate enforces the history gate on u.
func (u SignalUpdate) Validate() error {
	if u.HistoryPoints30d < 0 {
		return fmt.Errorf("%w: negative history depth %d", ErrInvalidUpdate, u.HistoryPoints30d)
	}
	if u.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: missing updated_at", ErrInvalidUpdate)
	}
	if signal.HasEnoughHistory(u.HistoryPoints30d) {
		return nil
	}
	if u.SignalTrend != nil || u.SignalBreakout != nil || u.SignalValue != nil || u.SignalsAsOf != nil {
		return fmt.Errorf("%w: %d points", ErrGateViolation, u.HistoryPoints30d)
	}
	return nil
}

// apply copies u onto r.
func (u SignalUpdate) apply(r *Record) {
	r.HistoryPoints30d = u.HistoryPoints30d
	r.SignalTrend = cloneFloat(u.SignalTrend)
	r.SignalBreakout = cloneFloat(u.SignalBreakout)
	r.SignalValue = cloneFloat(u.SignalValue)
	r.SignalsAsOf = cloneTime(u.SignalsAsOf)
	r.UpdatedAt = u.UpdatedAt
}

func (r Record) clone() Record {
	c := r
	c.TrendSlope7d = cloneFloat(r.TrendSlope7d)
	c.CovPrice30d = cloneFloat(r.CovPrice30d)
	c.PriceRelativeTo30dRange = cloneFloat(r.PriceRelativeTo30dRange)
	if r.PriceChangesCount30d != nil {
		v := *r.PriceChangesCount30d
		c.PriceChangesCount30d = &v
	}
	c.SignalTrend = cloneFloat(r.SignalTrend)
	c.SignalBreakout = cloneFloat(r.SignalBreakout)
	c.SignalValue = cloneFloat(r.SignalValue)
	c.SignalsAsOf = cloneTime(r.SignalsAsOf)
	return c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
