package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"farmledger/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and storage.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"templates": "ok", "storage": "ok"}
	if len(s.pages) == 0 {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	if s.opts.Ready != nil {
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			checks["storage"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	t := s.tracer.Metrics()
	rl := s.limiter.Metrics()
	sec := s.detector.Metrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total HTTP requests served", t.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", t.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Mean response time", t.AverageResponseTime)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rl.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rl.ClientCount)
	metric("suspicious_requests_total", "counter", "Requests matching probe patterns", sec.SuspiciousRequests)
	if s.opts.CacheStats != nil {
		cs := s.opts.CacheStats()
		metric("dashboard_cache_hits_total", "counter", "Dashboard cache hits", cs.Hits)
		metric("dashboard_cache_misses_total", "counter", "Dashboard cache misses", cs.Misses)
		metric("dashboard_cache_entries", "gauge", "Cached dashboards", cs.Size)
	}
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
