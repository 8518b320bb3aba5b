// Package handler implements the HTTP endpoints of the exchange API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/exchange"
	"github.com/alanyoungcy/condex/internal/service"
)

// AccountHeader carries the identity of the caller. Authentication of the
// header value is delegated to the API key in front of the server.
const AccountHeader = "X-Account"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Exchange is the service surface the handlers call.
type Exchange interface {
	Deposit(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) error
	Withdraw(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) error
	CreateBundle(ctx context.Context, owner domain.Account, holdings []domain.Holding) (domain.Bundle, error)
	DissolveBundle(ctx context.Context, id uint64, caller domain.Account) error
	Propose(ctx context.Context, proposer domain.Account, inputs, outputs []domain.Item, cond domain.Condition) (domain.Proposal, error)
	Cancel(ctx context.Context, id uint64, caller domain.Account) (domain.Proposal, error)
	IsMet(ctx context.Context, id uint64) (bool, error)
	Execute(ctx context.Context, id uint64, caller domain.Account) (domain.Proposal, error)
	Solve(ctx context.Context, id uint64, solver domain.Account, solution common.Hash) (domain.Puzzle, error)
	AddLiquidity(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) (domain.Amount, error)
	RemoveLiquidity(ctx context.Context, account domain.Account, shares domain.Amount, asset domain.AssetType) (domain.Amount, error)
	SetPrice(ctx context.Context, asset domain.AssetType, price uint64) error
	SetPaused(ctx context.Context, paused bool, actor string) error
	Reconcile(ctx context.Context) ([]exchange.AssetAudit, error)
	Status() service.Status

	Proposal(id uint64) (domain.Proposal, error)
	ListOpenProposals(afterID uint64, limit int) []domain.Proposal
	Bundle(id uint64) (domain.Bundle, error)
	Puzzle(id uint64) (domain.Puzzle, error)
	Balance(account domain.Account, asset domain.AssetType) domain.Amount
	Balances(account domain.Account) map[domain.AssetType]domain.Amount
	Position(account domain.Account) domain.LiquidityPosition
	Price(asset domain.AssetType) (uint64, bool)
}

var _ Exchange = (*service.ExchangeService)(nil)

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusFor maps an error to the HTTP status of its domain kind.
func StatusFor(err error) int {
	if errors.Is(err, domain.ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindState:
		return http.StatusConflict
	case domain.KindResource:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError answers with the mapped status. Internal errors are not
// echoed to the client.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: internal error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "internal server error")
		return
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(domain.KindOf(err)),
	})
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := fmt.Sprintf("invalid JSON body: %v", err)
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// callerAccount returns the X-Account header, or writes a 400 and false. The
// pool sentinel is never a valid caller.
func callerAccount(w http.ResponseWriter, r *http.Request) (domain.Account, bool) {
	acct := strings.TrimSpace(r.Header.Get(AccountHeader))
	if acct == "" {
		writeError(w, http.StatusBadRequest, "missing "+AccountHeader+" header")
		return "", false
	}
	if domain.Account(acct) == domain.PoolAccount {
		writeError(w, http.StatusBadRequest, "invalid "+AccountHeader+" header")
		return "", false
	}
	return domain.Account(acct), true
}

// pathID parses a positive integer path parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return id, true
}

// queryUint reads an optional unsigned query parameter.
func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
