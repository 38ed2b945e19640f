package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/civicwatch/incident-portal/internal/models"
	"go.uber.org/zap"
)

var startTime = time.Now()

// Version is reported by the health endpoints.
var Version = "1.0.0"

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints
type HealthHandler struct {
	db     Pinger
	logger *zap.SugaredLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, logger *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// Check handles GET /health (liveness probe)
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
	})
}

// Ready handles GET /health/ready (readiness probe)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warnw("Readiness check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, models.HealthStatus{
			Status:   "not ready",
			Version:  Version,
			Database: "disconnected",
		})
		return
	}

	respondJSON(w, http.StatusOK, models.HealthStatus{
		Status:   "ready",
		Version:  Version,
		Uptime:   time.Since(startTime).Round(time.Second).String(),
		Database: "connected",
	})
}
