// Package scarcity derives rarity metrics for a graded item from its
// population report: whether the grade is the top grade, how the population
// splits around it, and a 0-100 scarcity score.
//
// Scoring never fails. Absent or negative counts produce absent outputs.
package scarcity

import "math"

// Tier labels.
const (
	LabelTopTier    = "Top tier"
	LabelNotTopTier = "Not top tier"
)

// Metrics are the derived population metrics for one graded item.
type Metrics struct {
	TopGrade      bool     `json:"top_grade"`
	TopTierShare  *float64 `json:"top_tier_share,omitempty"`
	ScarcityScore *int     `json:"scarcity_score,omitempty"`
	HigherShare   *float64 `json:"higher_share,omitempty"`
	TierLabel     string   `json:"tier_label"`
}

// Score computes Metrics with the default curve.
func Score(totalPopulation, populationHigher *int) Metrics {
	return ScoreWithCurve(totalPopulation, populationHigher, DefaultCurve())
}

// ScoreWithCurve computes Metrics using the given curve constants.
func ScoreWithCurve(totalPopulation, populationHigher *int, curve Curve) Metrics {
	total, hasTotal := count(totalPopulation)
	higher, hasHigher := count(populationHigher)

	m := Metrics{
		TopGrade:  hasHigher && higher == 0,
		TierLabel: LabelNotTopTier,
	}
	if m.TopGrade {
		m.TierLabel = LabelTopTier
	}

	if hasTotal && hasHigher && total > 0 {
		top := clamp01(float64(total-higher) / float64(total))
		above := clamp01(float64(higher) / float64(total))
		m.TopTierShare = &top
		m.HigherShare = &above
	}

	if hasTotal {
		s := scarcityScore(total, m.TopTierShare, m.TopGrade, curve)
		m.ScarcityScore = &s
	}

	return m
}

func scarcityScore(total int, topTierShare *float64, topGrade bool, curve Curve) int {
	score := curve.Base(float64(total))
	if topTierShare != nil {
		score += (*topTierShare - curve.NudgeCenter) * curve.NudgeScale
	}
	score = math.Max(MinScore, math.Min(MaxScore, score))

	rounded := int(math.Round(score))
	if topGrade && total < curve.FloorPopulationCeiling && rounded < curve.TopGradeFloor {
		rounded = curve.TopGradeFloor
	}
	return rounded
}

// count dereferences a population count; negative counts are invalid input.
func count(p *int) (int, bool) {
	if p == nil || *p < 0 {
		return 0, false
	}
	return *p, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
