package scarcity

import (
	"errors"
	"fmt"
	"math"
)

// Anchor is one breakpoint of the base scarcity curve.
type Anchor struct {
	Population float64 `json:"population"`
	Score      float64 `json:"score"`
}

// Curve holds every tunable constant of the scarcity formula.
type Curve struct {
	// Anchors must have strictly increasing populations and strictly
	// decreasing scores. The base score is interpolated between anchors on a
	// log1p(population) axis.
	Anchors []Anchor `json:"anchors"`
	// TailExponent shapes the decay past the last anchor:
	// score = last.Score * (last.Population / population) ^ TailExponent.
	TailExponent float64 `json:"tail_exponent"`
	// NudgeCenter and NudgeScale shift the base score by
	// (topTierShare - NudgeCenter) * NudgeScale.
	NudgeCenter float64 `json:"nudge_center"`
	NudgeScale  float64 `json:"nudge_scale"`
	// TopGradeFloor is the minimum score of a top-grade item whose total
	// population is below FloorPopulationCeiling.
	TopGradeFloor          int `json:"top_grade_floor"`
	FloorPopulationCeiling int `json:"floor_population_ceiling"`
}

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Curve validation errors.
var (
	ErrTooFewAnchors     = errors.New("scarcity curve needs at least two anchors")
	ErrAnchorOrder       = errors.New("scarcity curve anchors must have increasing populations and decreasing scores")
	ErrAnchorOutOfBounds = errors.New("scarcity curve anchor out of bounds")
)

// DefaultCurve returns the production scarcity curve.
func DefaultCurve() Curve {
	return Curve{
		Anchors: []Anchor{
			{Population: 0, Score: 100},
			{Population: 100, Score: 90},
			{Population: 1000, Score: 72},
			{Population: 5000, Score: 50},
			{Population: 20000, Score: 28},
		},
		TailExponent:           0.5,
		NudgeCenter:            0.5,
		NudgeScale:             10,
		TopGradeFloor:          82,
		FloorPopulationCeiling: 1000,
	}
}

// Validate checks the anchor ordering the monotonicity guarantee depends on.
func (c Curve) Validate() error {
	if len(c.Anchors) < 2 {
		return ErrTooFewAnchors
	}
	for i, a := range c.Anchors {
		if a.Population < 0 || a.Score < MinScore || a.Score > MaxScore {
			return fmt.Errorf("anchor %d (%v, %v): %w", i, a.Population, a.Score, ErrAnchorOutOfBounds)
		}
		if i == 0 {
			continue
		}
		prev := c.Anchors[i-1]
		if a.Population <= prev.Population || a.Score >= prev.Score {
			return fmt.Errorf("anchor %d: %w", i, ErrAnchorOrder)
		}
	}
	if c.TailExponent < 0 {
		return fmt.Errorf("tail exponent %v: %w", c.TailExponent, ErrAnchorOutOfBounds)
	}
	return nil
}

// Base returns the unadjusted score for a population. It is non-increasing
// in population and continuous across anchors.
func (c Curve) Base(population float64) float64 {
	if len(c.Anchors) == 0 {
		return MaxScore
	}
	first := c.Anchors[0]
	if population <= first.Population {
		return first.Score
	}

	for i := 1; i < len(c.Anchors); i++ {
		lo, hi := c.Anchors[i-1], c.Anchors[i]
		if population > hi.Population {
			continue
		}
		span := math.Log1p(hi.Population) - math.Log1p(lo.Population)
		t := (math.Log1p(population) - math.Log1p(lo.Population)) / span
		return lo.Score + t*(hi.Score-lo.Score)
	}

	last := c.Anchors[len(c.Anchors)-1]
	if last.Population <= 0 {
		return last.Score
	}
	return last.Score * math.Pow(last.Population/population, c.TailExponent)
}
