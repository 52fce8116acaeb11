package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/cardpulse/internal/scarcity"
)

func getScarcity(t *testing.T, url string) (*httptest.ResponseRecorder, ScarcityResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	NewScarcityHandlers(scarcity.DefaultCurve()).Score(w, httptest.NewRequest(http.MethodGet, url, nil))

	var resp ScarcityResponse
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v (%s)", err, w.Body.String())
		}
	}
	return w, resp
}

func TestScarcity_TopGrade(t *testing.T) {
	w, resp := getScarcity(t, "/scarcity?total=1&higher=0")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !resp.TopGrade || resp.TierLabel != scarcity.LabelTopTier {
		t.Errorf("expected top grade, got %+v", resp.Metrics)
	}
	if resp.ScarcityScore == nil || *resp.ScarcityScore < scarcity.DefaultCurve().TopGradeFloor {
		t.Errorf("score = %v, want at least the top grade floor", resp.ScarcityScore)
	}
	if resp.TotalPopulation == nil || *resp.TotalPopulation != 1 {
		t.Errorf("total echo = %v, want 1", resp.TotalPopulation)
	}
}

func TestScarcity_MatchesScorer(t *testing.T) {
	total, higher := 2500, 400
	want := scarcity.Score(&total, &higher)

	_, resp := getScarcity(t, "/scarcity?total=2500&higher=400")
	if resp.ScarcityScore == nil || *resp.ScarcityScore != *want.ScarcityScore {
		t.Errorf("score = %v, want %d", resp.ScarcityScore, *want.ScarcityScore)
	}
	if resp.TopTierShare == nil || *resp.TopTierShare != *want.TopTierShare {
		t.Errorf("top tier share = %v, want %v", resp.TopTierShare, *want.TopTierShare)
	}
	if resp.TopGrade {
		t.Error("grade with a higher population is not top grade")
	}
}

func TestScarcity_MissingInputs(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantScore bool
		wantShare bool
	}{
		{"nothing", "/scarcity", false, false},
		{"total only", "/scarcity?total=120", true, false},
		{"higher only", "/scarcity?higher=0", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := getScarcity(t, tt.url)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if (resp.ScarcityScore != nil) != tt.wantScore {
				t.Errorf("score present = %v, want %v", resp.ScarcityScore != nil, tt.wantScore)
			}
			if (resp.TopTierShare != nil) != tt.wantShare {
				t.Errorf("share present = %v, want %v", resp.TopTierShare != nil, tt.wantShare)
			}
		})
	}
}

func TestScarcity_Validation(t *testing.T) {
	for _, url := range []string{
		"/scarcity?total=abc",
		"/scarcity?total=-1",
		"/scarcity?total=10&higher=1.5",
		"/scarcity?total=10&higher=11",
	} {
		t.Run(url, func(t *testing.T) {
			w, _ := getScarcity(t, url)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestScarcity_UsesConfiguredCurve(t *testing.T) {
	curve := scarcity.DefaultCurve()
	curve.TopGradeFloor = 99

	w := httptest.NewRecorder()
	NewScarcityHandlers(curve).Score(w, httptest.NewRequest(http.MethodGet, "/scarcity?total=900&higher=0", nil))

	var resp ScarcityResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ScarcityScore == nil || *resp.ScarcityScore != 99 {
		t.Errorf("score = %v, want floor 99 from the configured curve", resp.ScarcityScore)
	}
}
