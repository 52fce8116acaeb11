// Package signal computes the derived trend, breakout and value-zone signals
// for a variant from provider-supplied statistics and the locally counted
// history depth.
//
// Every output is a tagged Result. A signal is either Computed, suppressed by
// the sufficiency gate (InsufficientHistory), or suppressed because an input
// it needs is absent or malformed (MissingInput). None of the functions in
// this package return errors or panic on bad numeric input.
package signal

import (
	"math"
	"time"
)

// MinHistoryPoints is the sufficiency gate: signals are only trusted when at
// least this many price observations fall inside HistoryWindow.
const MinHistoryPoints = 10

// HistoryWindow is the trailing window used to count history points.
const HistoryWindow = 30 * 24 * time.Hour

// Decimal places applied to each signal.
const (
	TrendPrecision    = 4
	BreakoutPrecision = 4
	ValuePrecision    = 2
)

// Outcome tags how a Result was produced.
type Outcome int

const (
	// MissingInput means an input the signal needs was absent or invalid.
	MissingInput Outcome = iota
	// InsufficientHistory means the sufficiency gate did not hold.
	InsufficientHistory
	// Computed means Value holds the rounded signal.
	Computed
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case Computed:
		return "computed"
	case InsufficientHistory:
		return "insufficient_history"
	default:
		return "missing_input"
	}
}

// Result is a single derived signal.
type Result struct {
	Value   float64
	Outcome Outcome
}

// Present reports whether the signal was computed.
func (r Result) Present() bool {
	return r.Outcome == Computed
}

// Ptr returns the value as a nullable pointer, the form stored on the
// variant metric row. Any non-computed outcome collapses to nil.
func (r Result) Ptr() *float64 {
	if !r.Present() {
		return nil
	}
	v := r.Value
	return &v
}

func computed(v float64) Result {
	return Result{Value: v, Outcome: Computed}
}

// Inputs are the statistics a signal computation reads. Pointer fields are
// absent when nil.
type Inputs struct {
	TrendSlope7d            *float64
	CovPrice30d             *float64
	PriceRelativeTo30dRange *float64
	PriceChangesCount30d    *int
	HistoryPoints30d        int
}

// Signals holds the three derived signals for one variant.
type Signals struct {
	Trend    Result
	Breakout Result
	Value    Result
}

// AnyPresent reports whether at least one signal was computed.
func (s Signals) AnyPresent() bool {
	return s.Trend.Present() || s.Breakout.Present() || s.Value.Present()
}

// HasEnoughHistory reports whether historyPoints passes the sufficiency gate.
func HasEnoughHistory(historyPoints int) bool {
	return historyPoints >= MinHistoryPoints
}

// Compute derives all three signals from in.
func Compute(in Inputs) Signals {
	if !HasEnoughHistory(in.HistoryPoints30d) {
		gated := Result{Outcome: InsufficientHistory}
		return Signals{Trend: gated, Breakout: gated, Value: gated}
	}

	slope, hasSlope := finite(in.TrendSlope7d)
	cov, hasCov := finite(in.CovPrice30d)
	rel, hasRel := unitInterval(in.PriceRelativeTo30dRange)

	return Signals{
		Trend:    trend(slope, hasSlope, cov, hasCov),
		Breakout: breakout(slope, hasSlope, rel, hasRel, changesCount(in.PriceChangesCount30d)),
		Value:    value(rel, hasRel),
	}
}

// trend is slope normalised by price volatility.
func trend(slope float64, hasSlope bool, cov float64, hasCov bool) Result {
	if !hasSlope || !hasCov || cov == 0 {
		return Result{Outcome: MissingInput}
	}
	return roundResult(slope/cov, TrendPrecision)
}

// breakout rewards upward slope combined with frequent observations and a
// price sitting low in its recent range.
func breakout(slope float64, hasSlope bool, rel float64, hasRel bool, changes int) Result {
	if !hasSlope || !hasRel {
		return Result{Outcome: MissingInput}
	}
	return roundResult(slope*math.Log(1+float64(changes))*(1-rel), BreakoutPrecision)
}

// value is 100 at the bottom of the 30-day range and 0 at the top.
func value(rel float64, hasRel bool) Result {
	if !hasRel {
		return Result{Outcome: MissingInput}
	}
	return roundResult((1-rel)*100, ValuePrecision)
}

func roundResult(v float64, places int32) Result {
	r, ok := Round(v, places)
	if !ok {
		return Result{Outcome: MissingInput}
	}
	return computed(r)
}

// finite dereferences p, rejecting NaN and infinities.
func finite(p *float64) (float64, bool) {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0, false
	}
	return *p, true
}

// unitInterval dereferences a ratio that must lie in [0, 1].
func unitInterval(p *float64) (float64, bool) {
	v, ok := finite(p)
	if !ok || v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// changesCount treats an absent or negative count as zero.
func changesCount(p *int) int {
	if p == nil || *p < 0 {
		return 0
	}
	return *p
}
