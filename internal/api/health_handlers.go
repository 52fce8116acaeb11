package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker is a named dependency probe.
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// Check states reported in HealthResponse.Checks.
const (
	CheckOK    = "ok"
	CheckError = "error"
)

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	// Critical checkers fail readiness.
	Critical []HealthChecker
	// Advisory checkers are reported but only degrade the status.
	Advisory []HealthChecker
	// Timeout bounds a readiness probe; defaults to 5s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// HealthHandlers provides liveness and readiness endpoints.
type HealthHandlers struct {
	cfg HealthHandlersConfig
	now func() time.Time
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(cfg HealthHandlersConfig) *HealthHandlers {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HealthHandlers{cfg: cfg, now: time.Now}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness). It never touches dependencies.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": CheckOK},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. Any failing critical checker yields 503
// "unhealthy"; failing advisory checkers yield 200 "degraded".
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	checks := make(map[string]string)
	criticalOK := h.run(ctx, h.cfg.Critical, checks)
	advisoryOK := h.run(ctx, h.cfg.Advisory, checks)

	status, code := "healthy", http.StatusOK
	switch {
	case !criticalOK:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case !advisoryOK:
		status = "degraded"
	}

	writeJSON(w, r, code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandlers) run(ctx context.Context, checkers []HealthChecker, checks map[string]string) bool {
	ok := true
	for _, c := range checkers {
		if err := c.HealthCheck(ctx); err != nil {
			checks[c.Name()] = CheckError
			ok = false
			h.cfg.Logger.WarnContext(ctx, "health check failed", "check", c.Name(), "error", err)
			continue
		}
		checks[c.Name()] = CheckOK
	}
	return ok
}
