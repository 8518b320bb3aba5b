package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves liveness and a status summary.
type HealthHandler struct {
	exchange Exchange
	logger   *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(ex Exchange, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{exchange: ex, logger: logHandler(logger, "health")}
}

// HealthCheck reports liveness with the exchange status.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"exchange":  h.exchange.Status(),
	})
}
