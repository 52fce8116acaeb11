package signal

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds v to places decimal places, half away from zero. The
// arithmetic is done in decimal so results do not depend on platform float
// rounding. It returns false for NaN or infinite input.
func Round(v float64, places int32) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f, true
}
