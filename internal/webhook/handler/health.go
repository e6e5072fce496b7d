package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ticketrouter/internal/alerting"
	"ticketrouter/internal/platform/config"
	"ticketrouter/pkg/platform/httputil"
)

const serviceName = "ticket-routing-webhook"

// Health serves the liveness and readiness endpoints. Neither requires
// authentication.
type Health struct {
	cfg       config.Service
	alerts    *alerting.Service
	startTime time.Time
}

// NewHealth constructs the health handler.
func NewHealth(cfg config.Service, alerts *alerting.Service) *Health {
	return &Health{
		cfg:       cfg,
		alerts:    alerts,
		startTime: time.Now(),
	}
}

// Register mounts the health endpoints on the router.
func (h *Health) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
}

// handleHealth always reports healthy while the process is serving.
func (h *Health) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"service":        serviceName,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady validates required configuration and reports alerting status.
func (h *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	if missing := h.cfg.MissingRequired(); len(missing) > 0 {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "not_ready",
			"service":   serviceName,
			"missing":   missing,
			"alerting":  h.alerts.Stats(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"service":        serviceName,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"alerting":       h.alerts.Stats(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
