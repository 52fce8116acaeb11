package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockHealthChecker struct {
	name string
	err  error
}

func (m mockHealthChecker) Name() string                          { return m.name }
func (m mockHealthChecker) HealthCheck(ctx context.Context) error { return m.err }

type slowChecker struct{}

func (slowChecker) Name() string { return "slow" }
func (slowChecker) HealthCheck(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealth_Liveness(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{
		Critical: []HealthChecker{mockHealthChecker{name: "database", err: errors.New("down")}},
	})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("liveness must not depend on checkers, got %d", w.Code)
	}
	resp := decodeHealth(t, w)
	if resp.Status != "healthy" || resp.Checks["runtime"] != CheckOK {
		t.Errorf("unexpected response %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
		t.Errorf("timestamp is not RFC3339: %v", err)
	}
}

func TestReady(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name       string
		critical   []HealthChecker
		advisory   []HealthChecker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			critical:   []HealthChecker{mockHealthChecker{name: "database"}},
			advisory:   []HealthChecker{mockHealthChecker{name: "signal_refresh"}},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantChecks: map[string]string{"database": CheckOK, "signal_refresh": CheckOK},
		},
		{
			name:       "critical failure",
			critical:   []HealthChecker{mockHealthChecker{name: "database", err: down}, mockHealthChecker{name: "redis"}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"database": CheckError, "redis": CheckOK},
		},
		{
			name:       "advisory failure degrades",
			critical:   []HealthChecker{mockHealthChecker{name: "database"}},
			advisory:   []HealthChecker{mockHealthChecker{name: "signal_refresh", err: down}},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"database": CheckOK, "signal_refresh": CheckError},
		},
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantChecks: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandlers(HealthHandlersConfig{Critical: tt.critical, Advisory: tt.advisory})

			w := httptest.NewRecorder()
			h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			resp := decodeHealth(t, w)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if resp.Checks[k] != v {
					t.Errorf("checks[%s] = %s, want %s", k, resp.Checks[k], v)
				}
			}
		})
	}
}

func TestReady_Timeout(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{
		Critical: []HealthChecker{slowChecker{}},
		Timeout:  20 * time.Millisecond,
	})

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503 after timeout", w.Code)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := NewHealthHandlers(HealthHandlersConfig{})
	for _, handler := range []http.HandlerFunc{h.Health, h.Ready} {
		w := httptest.NewRecorder()
		handler(w, httptest.NewRequest(http.MethodPost, "/health", nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("code = %d, want 405", w.Code)
		}
	}
}
