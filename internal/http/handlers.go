package http

import (
	"context"
	"net/http"
	"time"

	"registro/internal/log"
)

// handleHealth performs a basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics := s.tracer.GetMetrics()
	body := map[string]any{
		"status":         "ok",
		"timestamp":      s.now().UTC().Format(time.RFC3339),
		"uptime":         s.now().Sub(s.startedAt).Round(time.Second).String(),
		"total_requests": metrics.TotalRequests,
		"server_errors":  metrics.ServerErrors,
	}
	if s.rateLimiter != nil {
		rl := s.rateLimiter.GetMetrics()
		body["rate_limited"] = rl.Rejected
		body["active_clients"] = rl.ClientCount
	}
	NewResponse().JSON(body).Write(w)
}

// handleReady checks every registered dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.readiness))
	for _, dep := range s.readiness {
		if err := dep.p.Ping(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", "dependency", dep.name, "error", err)
			checks[dep.name] = "failed: " + err.Error()
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[dep.name] = "ok"
	}

	NewResponse().
		Status(httpStatus).
		JSON(map[string]any{"status": status, "checks": checks}).
		Write(w)
}
