package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each dependency check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.instrumentMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/status", s.handleStatus)
		r.Post("/boot", s.handleBoot)
		r.Post("/quit", s.handleQuit)
		r.Post("/send", s.handleSend)

		r.Get("/history", s.handleListHistory)
	})

	return r
}

// handleHealth returns the server health status. The engine being stopped
// is not a failure; an unreachable database is.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.db.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"engine":  s.sup.Snapshot().Status,
		"checks":  checks,
	})
}
