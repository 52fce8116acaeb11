package api

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/cardpulse/internal/refresh"
)

// RefreshHandlers exposes the state of the signal refresh job.
type RefreshHandlers struct {
	store  refresh.StatusStore
	logger *slog.Logger
}

// NewRefreshHandlers creates handlers reading from store. A nil logger uses slog.Default().
func NewRefreshHandlers(store refresh.StatusStore, logger *slog.Logger) *RefreshHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshHandlers{store: store, logger: logger}
}

// Status handles GET /refresh/status.
func (h *RefreshHandlers) Status(w http.ResponseWriter, r *http.Request) {
	if !requireGET(w, r) {
		return
	}

	st, err := h.store.LoadStatus(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to load refresh status", "error", err)
		writeCodedError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "Refresh status is unavailable")
		return
	}
	if st == nil {
		writeCodedError(w, r, http.StatusNotFound, ErrCodeNotFound, "No signal refresh has been recorded")
		return
	}

	writeJSON(w, r, http.StatusOK, st)
}
