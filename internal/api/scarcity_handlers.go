package api

import (
	"net/http"

	"github.com/onnwee/cardpulse/internal/scarcity"
	"github.com/onnwee/cardpulse/internal/validate"
)

// ScarcityHandlers serves GET /scarcity using a calibrated curve.
type ScarcityHandlers struct {
	curve scarcity.Curve
}

// NewScarcityHandlers creates handlers scoring with curve.
func NewScarcityHandlers(curve scarcity.Curve) *ScarcityHandlers {
	return &ScarcityHandlers{curve: curve}
}

// ScarcityResponse echoes the inputs next to the derived metrics.
type ScarcityResponse struct {
	TotalPopulation  *int `json:"total_population"`
	PopulationHigher *int `json:"population_higher"`
	scarcity.Metrics
}

// Score handles GET /scarcity?total=&higher=. Both parameters are optional
// non-negative integers; an omitted one is treated as unknown.
func (h *ScarcityHandlers) Score(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	query := r.URL.Query()
	total, err := validate.OptionalCount(query.Get("total"))
	if err != nil {
		writeCodedError(w, r, http.StatusBadRequest, ErrCodeValidation, "total must be a non-negative integer")
		return
	}
	higher, err := validate.OptionalCount(query.Get("higher"))
	if err != nil {
		writeCodedError(w, r, http.StatusBadRequest, ErrCodeValidation, "higher must be a non-negative integer")
		return
	}
	if total != nil && higher != nil && *higher > *total {
		writeCodedError(w, r, http.StatusBadRequest, ErrCodeValidation, "higher cannot exceed total")
		return
	}

	writeJSON(w, r, http.StatusOK, ScarcityResponse{
		TotalPopulation:  total,
		PopulationHigher: higher,
		Metrics:          scarcity.ScoreWithCurve(total, higher, h.curve),
	})
}
