package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/onnwee/cardpulse/internal/scarcity"
	"github.com/onnwee/cardpulse/internal/search"
)

// Calibration holds every tunable scorer constant.
type Calibration struct {
	Scarcity scarcity.Curve `json:"scarcity"`
	Search   search.Weights `json:"search"`
}

// ScarcityOverride is the file form of scarcity.Curve. Absent fields keep
// their default.
type ScarcityOverride struct {
	Anchors                []scarcity.Anchor `json:"anchors,omitempty"`
	TailExponent           *float64          `json:"tail_exponent,omitempty"`
	NudgeCenter            *float64          `json:"nudge_center,omitempty"`
	NudgeScale             *float64          `json:"nudge_scale,omitempty"`
	TopGradeFloor          *int              `json:"top_grade_floor,omitempty"`
	FloorPopulationCeiling *int              `json:"floor_population_ceiling,omitempty"`
}

// SearchOverride is the file form of search.Weights.
type SearchOverride struct {
	Primary   *int `json:"primary,omitempty"`
	Secondary *int `json:"secondary,omitempty"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version  string            `json:"version"`
	Scarcity *ScarcityOverride `json:"scarcity,omitempty"`
	Search   *SearchOverride   `json:"search,omitempty"`
}

// DefaultCalibration returns the built-in constants.
func DefaultCalibration() *Calibration {
	return &Calibration{
		Scarcity: scarcity.DefaultCurve(),
		Search:   search.DefaultWeights(),
	}
}

// LoadCalibration loads a calibration file and merges it over the defaults.
// An empty path returns the defaults. On any read, parse or validation error
// the defaults are returned together with the error.
func LoadCalibration(filePath string) (*Calibration, error) {
	if filePath == "" {
		return DefaultCalibration(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultCalibration()
	merged := MergeCalibration(defaults, &config)
	if err := merged.Validate(); err != nil {
		slog.Warn("invalid calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("invalid calibration file: %w", err)
	}
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// Validate checks the merged calibration.
func (c *Calibration) Validate() error {
	if err := c.Scarcity.Validate(); err != nil {
		return err
	}
	if c.Search.Primary < 0 || c.Search.Secondary < 0 {
		return fmt.Errorf("search weights must be non-negative, got %d/%d", c.Search.Primary, c.Search.Secondary)
	}
	return nil
}

// MergeCalibration applies the fields present in override to a copy of base.
// base is never modified.
func MergeCalibration(base *Calibration, override *CalibrationConfig) *Calibration {
	if base == nil {
		base = DefaultCalibration()
	}

	result := *base
	result.Scarcity.Anchors = append([]scarcity.Anchor(nil), base.Scarcity.Anchors...)
	if override == nil {
		return &result
	}

	if s := override.Scarcity; s != nil {
		if len(s.Anchors) > 0 {
			result.Scarcity.Anchors = append([]scarcity.Anchor(nil), s.Anchors...)
		}
		if s.TailExponent != nil {
			result.Scarcity.TailExponent = *s.TailExponent
		}
		if s.NudgeCenter != nil {
			result.Scarcity.NudgeCenter = *s.NudgeCenter
		}
		if s.NudgeScale != nil {
			result.Scarcity.NudgeScale = *s.NudgeScale
		}
		if s.TopGradeFloor != nil {
			result.Scarcity.TopGradeFloor = *s.TopGradeFloor
		}
		if s.FloorPopulationCeiling != nil {
			result.Scarcity.FloorPopulationCeiling = *s.FloorPopulationCeiling
		}
	}

	if s := override.Search; s != nil {
		if s.Primary != nil {
			result.Search.Primary = *s.Primary
		}
		if s.Secondary != nil {
			result.Search.Secondary = *s.Secondary
		}
	}

	return &result
}

// logCalibrationOverrides logs which constants differ from the defaults.
func logCalibrationOverrides(defaults, loaded *Calibration) {
	var overrides []string

	d, l := defaults.Scarcity, loaded.Scarcity
	if len(d.Anchors) != len(l.Anchors) {
		overrides = append(overrides, fmt.Sprintf("scarcity.anchors: %d -> %d points", len(d.Anchors), len(l.Anchors)))
	} else {
		for i := range d.Anchors {
			if d.Anchors[i] != l.Anchors[i] {
				overrides = append(overrides, fmt.Sprintf("scarcity.anchors[%d]: %v -> %v", i, d.Anchors[i], l.Anchors[i]))
			}
		}
	}
	if d.TailExponent != l.TailExponent {
		overrides = append(overrides, fmt.Sprintf("scarcity.tail_exponent: %.2f -> %.2f", d.TailExponent, l.TailExponent))
	}
	if d.NudgeCenter != l.NudgeCenter {
		overrides = append(overrides, fmt.Sprintf("scarcity.nudge_center: %.2f -> %.2f", d.NudgeCenter, l.NudgeCenter))
	}
	if d.NudgeScale != l.NudgeScale {
		overrides = append(overrides, fmt.Sprintf("scarcity.nudge_scale: %.2f -> %.2f", d.NudgeScale, l.NudgeScale))
	}
	if d.TopGradeFloor != l.TopGradeFloor {
		overrides = append(overrides, fmt.Sprintf("scarcity.top_grade_floor: %d -> %d", d.TopGradeFloor, l.TopGradeFloor))
	}
	if d.FloorPopulationCeiling != l.FloorPopulationCeiling {
		overrides = append(overrides, fmt.Sprintf("scarcity.floor_population_ceiling: %d -> %d", d.FloorPopulationCeiling, l.FloorPopulationCeiling))
	}
	if defaults.Search.Primary != loaded.Search.Primary {
		overrides = append(overrides, fmt.Sprintf("search.primary: %d -> %d", defaults.Search.Primary, loaded.Search.Primary))
	}
	if defaults.Search.Secondary != loaded.Search.Secondary {
		overrides = append(overrides, fmt.Sprintf("search.secondary: %d -> %d", defaults.Search.Secondary, loaded.Search.Secondary))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
