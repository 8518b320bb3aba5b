package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/condex/internal/domain"
)

// BundleHandler serves bundle creation, lookup and dissolution.
type BundleHandler struct {
	exchange Exchange
	logger   *slog.Logger
}

// NewBundleHandler creates a BundleHandler.
func NewBundleHandler(ex Exchange, logger *slog.Logger) *BundleHandler {
	return &BundleHandler{exchange: ex, logger: logHandler(logger, "bundle")}
}

type createBundleRequest struct {
	Holdings []domain.Holding `json:"holdings"`
}

// CreateBundle debits the caller and mints a bundle.
// POST /api/bundles
func (h *BundleHandler) CreateBundle(w http.ResponseWriter, r *http.Request) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req createBundleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.exchange.CreateBundle(r.Context(), acct, req.Holdings)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GetBundle returns a live bundle.
// GET /api/bundles/{id}
func (h *BundleHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	b, err := h.exchange.Bundle(id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DissolveBundle credits the holdings back to the owner.
// DELETE /api/bundles/{id}
func (h *BundleHandler) DissolveBundle(w http.ResponseWriter, r *http.Request) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.exchange.DissolveBundle(r.Context(), id, acct); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
