package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/exchange"
)

// AdminHandler serves privileged writes and operational reads.
type AdminHandler struct {
	exchange Exchange
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(ex Exchange, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{exchange: ex, logger: logHandler(logger, "admin")}
}

type setPriceRequest struct {
	Price uint64 `json:"price"`
}

type pauseRequest struct {
	Paused *bool `json:"paused"`
}

type reconcileResponse struct {
	Balanced bool                  `json:"balanced"`
	Assets   []exchange.AssetAudit `json:"assets"`
}

// SetPrice writes an oracle register.
// PUT /api/oracle/{asset}
func (h *AdminHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	asset := domain.AssetType(r.PathValue("asset"))
	var req setPriceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.exchange.SetPrice(r.Context(), asset, req.Price); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset": asset, "price": req.Price})
}

// GetPrice reads an oracle register.
// GET /api/oracle/{asset}
func (h *AdminHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset := domain.AssetType(r.PathValue("asset"))
	price, ok := h.exchange.Price(asset)
	if !ok {
		writeError(w, http.StatusNotFound, "no price for "+string(asset))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset": asset, "price": price})
}

// SetPaused toggles the pause flag.
// PUT /api/admin/pause
func (h *AdminHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Paused == nil {
		writeError(w, http.StatusBadRequest, "paused is required")
		return
	}
	actor := r.Header.Get(AccountHeader)
	if actor == "" {
		actor = "admin"
	}
	if err := h.exchange.SetPaused(r.Context(), *req.Paused, actor); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.exchange.Status())
}

// Reconcile audits every asset against its deposit and withdrawal totals.
// An imbalance answers 409 with the full breakdown.
// GET /api/reconcile
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	audits, err := h.exchange.Reconcile(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reconcileResponse{Balanced: true, Assets: audits})
	case errors.Is(err, exchange.ErrImbalance):
		writeJSON(w, http.StatusConflict, reconcileResponse{Balanced: false, Assets: audits})
	default:
		writeDomainError(w, h.logger, r, err)
	}
}

// Status returns the exchange counters.
// GET /api/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.exchange.Status())
}
