// Package httptransport is the daemon's HTTP surface: health, metrics
// and the authenticated query API over recent audit events.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aumon/internal/platform/middleware"
)

// NewRouter wires all endpoints. Everything under /v1 requires a valid
// bearer token; with no validator configured the query API is not
// mounted at all. Health and metrics stay open for probes and scrapers.
func NewRouter(h *Handler, validator middleware.TokenValidator, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	if validator != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Use(middleware.RequireAuth(validator, log))
			r.Get("/events/recent", h.RecentEvents)
		})
	}

	return r
}
