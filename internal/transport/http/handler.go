package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"

	"aumon/internal/pipeline"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler is the thin HTTP layer. It delegates to the pipeline store
// without embedding pipeline logic so transport concerns remain
// isolated.
type Handler struct {
	store  pipeline.Store
	checks []HealthChecker
	log    *slog.Logger
}

func NewHandler(store pipeline.Store, log *slog.Logger, checks ...HealthChecker) *Handler {
	return &Handler{store: store, checks: checks, log: log}
}

// Healthz reports process liveness and dependency health.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.checks {
		if err := check.Health(r.Context()); err != nil {
			h.log.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RecentEvents returns the most recent audit event records, newest
// first. The limit query parameter caps the page size.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid_limit",
			})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "list recent events failed",
			"error", err,
			"request_id", chimw.GetReqID(r.Context()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal",
		})
		return
	}
	if records == nil {
		records = []pipeline.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": records,
		"count":  len(records),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
