package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	logger  *observability.Logger
	ready   func(ctx context.Context) error
	service string
	version string
}

// NewHealthHandler creates a health handler. ready may be nil.
func NewHealthHandler(logger *observability.Logger, ready func(ctx context.Context) error, version string) *HealthHandler {
	return &HealthHandler{logger: logger, ready: ready, service: "catalog-assistant", version: version}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.service,
		"version": h.version,
	})
}

// Ready handles GET /ready by pinging the content store.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.WithContext(r.Context()).Warn().Err(err).Msg("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"detail": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
