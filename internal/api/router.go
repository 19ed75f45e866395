// Package api exposes the operational HTTP surface of the scheduler:
// Prometheus metrics, health, and on-demand runs.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"searchads-tap/internal/metrics"
	"searchads-tap/internal/middleware"
	"searchads-tap/internal/service/extract"
)

// RunTrigger starts a run and reports the last one.
// Implemented by extract.Scheduler.
type RunTrigger interface {
	Trigger(ctx context.Context) ([]extract.Result, error)
	LastRun() *extract.RunStatus
}

type healthResponse struct {
	Status  string             `json:"status"`
	LastRun *extract.RunStatus `json:"last_run,omitempty"`
}

// triggerLimit bounds on-demand runs; each run spends backend job quota.
var triggerLimit = middleware.RateLimitConfig{RequestsPerSecond: 1.0 / 60, Burst: 2}

// NewRouter builds the HTTP handler. runs may be nil, in which case only
// /metrics and /healthz are served.
func NewRouter(m *metrics.Metrics, runs RunTrigger, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok"}
		if runs != nil {
			resp.LastRun = runs.LastRun()
			if resp.LastRun != nil && resp.LastRun.Error != "" {
				resp.Status = "degraded"
			}
		}
		writeJSON(w, http.StatusOK, resp)
	})

	if runs != nil {
		r.Route("/v1/runs", func(r chi.Router) {
			r.Get("/last", func(w http.ResponseWriter, _ *http.Request) {
				last := runs.LastRun()
				if last == nil {
					writeJSON(w, http.StatusNotFound, errorResponse{Code: http.StatusNotFound, Message: "no run yet"})
					return
				}
				writeJSON(w, http.StatusOK, last)
			})
			r.With(middleware.RateLimiter(triggerLimit)).Post("/", func(w http.ResponseWriter, req *http.Request) {
				// Runs are not cancelled when the caller disconnects.
				results, err := runs.Trigger(context.WithoutCancel(req.Context()))
				if err != nil {
					logger.Warn("on-demand run failed", "error", err,
						"request_id", middleware.RequestIDFromContext(req.Context()))
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, results)
			})
		})
	}

	return r
}
