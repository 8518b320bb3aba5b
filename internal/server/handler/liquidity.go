package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/condex/internal/domain"
)

// LiquidityHandler serves pool deposits and redemptions.
type LiquidityHandler struct {
	exchange Exchange
	logger   *slog.Logger
}

// NewLiquidityHandler creates a LiquidityHandler.
func NewLiquidityHandler(ex Exchange, logger *slog.Logger) *LiquidityHandler {
	return &LiquidityHandler{exchange: ex, logger: logHandler(logger, "liquidity")}
}

type addLiquidityRequest struct {
	Asset  domain.AssetType `json:"asset"`
	Amount domain.Amount    `json:"amount"`
}

type removeLiquidityRequest struct {
	Asset  domain.AssetType `json:"asset"`
	Shares domain.Amount    `json:"shares"`
}

// AddLiquidity moves the caller's asset into the pool for shares.
// POST /api/liquidity
func (h *LiquidityHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req addLiquidityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	shares, err := h.exchange.AddLiquidity(r.Context(), acct, req.Asset, req.Amount)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shares":   shares,
		"position": h.exchange.Position(acct),
	})
}

// RemoveLiquidity burns shares and pays the asset out of the pool.
// DELETE /api/liquidity
func (h *LiquidityHandler) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req removeLiquidityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := h.exchange.RemoveLiquidity(r.Context(), acct, req.Shares, req.Asset)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":    req.Asset,
		"amount":   amount,
		"position": h.exchange.Position(acct),
	})
}

// GetPosition returns an account's pool shares.
// GET /api/liquidity/{account}
func (h *LiquidityHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.exchange.Position(domain.Account(r.PathValue("account"))))
}
