package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/condex/internal/domain"
)

// LedgerHandler serves deposits, withdrawals and balances.
type LedgerHandler struct {
	exchange Exchange
	logger   *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ex Exchange, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{exchange: ex, logger: logHandler(logger, "ledger")}
}

type transferRequest struct {
	Asset  domain.AssetType `json:"asset"`
	Amount domain.Amount    `json:"amount"`
}

type balanceResponse struct {
	Account domain.Account   `json:"account"`
	Asset   domain.AssetType `json:"asset"`
	Amount  domain.Amount    `json:"amount"`
}

// Deposit credits the caller once custody has received the asset.
// POST /api/deposits
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.exchange.Deposit)
}

// Withdraw pays out from the caller's balance.
// POST /api/withdrawals
func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.exchange.Withdraw)
}

func (h *LedgerHandler) transfer(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, domain.Account, domain.AssetType, domain.Amount) error,
) {
	acct, ok := callerAccount(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := op(r.Context(), acct, req.Asset, req.Amount); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		Account: acct,
		Asset:   req.Asset,
		Amount:  h.exchange.Balance(acct, req.Asset),
	})
}

// GetBalance returns one ledger entry.
// GET /api/balances/{account}/{asset}
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acct := domain.Account(r.PathValue("account"))
	asset := domain.AssetType(r.PathValue("asset"))
	writeJSON(w, http.StatusOK, balanceResponse{
		Account: acct,
		Asset:   asset,
		Amount:  h.exchange.Balance(acct, asset),
	})
}

// ListBalances returns every non-zero balance of an account.
// GET /api/balances/{account}
func (h *LedgerHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	acct := domain.Account(r.PathValue("account"))
	writeJSON(w, http.StatusOK, map[string]any{
		"account":  acct,
		"balances": h.exchange.Balances(acct),
	})
}
