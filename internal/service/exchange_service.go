// Package service layers logging, metrics and side channels over the
// exchange engine and runs its background jobs.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/exchange"
	"github.com/alanyoungcy/condex/internal/metrics"
)

// ExchangeService is the context-aware facade the transports call. Events of
// committed operations reach the publisher through the engine hook, so the
// methods here only observe and log.
type ExchangeService struct {
	engine  *exchange.Engine
	admin   *Admin
	prices  domain.PriceCache
	audit   domain.AuditStore
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewExchangeService creates an ExchangeService with all required dependencies.
func NewExchangeService(
	engine *exchange.Engine,
	admin *Admin,
	prices domain.PriceCache,
	audit domain.AuditStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ExchangeService {
	return &ExchangeService{
		engine:  engine,
		admin:   admin,
		prices:  prices,
		audit:   audit,
		metrics: m,
		logger:  logger.With(slog.String("component", "exchange_service")),
	}
}

// Status is a point-in-time summary of the exchange.
type Status struct {
	Seq           uint64 `json:"seq"`
	OpenProposals int    `json:"open_proposals"`
	Executed      uint64 `json:"executed_count"`
	TotalShares   uint64 `json:"total_shares"`
	Paused        bool   `json:"paused"`
	FeeRateBps    uint32 `json:"fee_rate_bps"`
}

func (s *ExchangeService) observe(ctx context.Context, op string, start time.Time, err error, attrs ...slog.Attr) {
	s.metrics.ObserveOp(op, start, err)
	s.metrics.SetOpenProposals(s.engine.OpenCount())

	attrs = append(attrs, slog.String("op", op), slog.Duration("took", time.Since(start)))
	switch {
	case err == nil:
		s.logger.LogAttrs(ctx, slog.LevelDebug, "exchange_service: ok", attrs...)
	case domain.KindOf(err) == domain.KindInternal:
		attrs = append(attrs, slog.String("error", err.Error()))
		s.logger.LogAttrs(ctx, slog.LevelError, "exchange_service: failed", attrs...)
	default:
		attrs = append(attrs, slog.String("error", err.Error()))
		s.logger.LogAttrs(ctx, slog.LevelInfo, "exchange_service: rejected", attrs...)
	}
}

// Deposit credits amount of asset to account after custody receives it.
func (s *ExchangeService) Deposit(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) (err error) {
	defer func(start time.Time) {
		s.observe(ctx, "deposit", start, err, slog.String("account", string(account)), slog.String("asset", string(asset)))
	}(time.Now())
	return s.engine.Deposit(ctx, account, asset, amount)
}

// Withdraw pays amount of asset out of account.
func (s *ExchangeService) Withdraw(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) (err error) {
	defer func(start time.Time) {
		s.observe(ctx, "withdraw", start, err, slog.String("account", string(account)), slog.String("asset", string(asset)))
	}(time.Now())
	return s.engine.Withdraw(ctx, account, asset, amount)
}

// CreateBundle groups holdings of owner into a new bundle.
func (s *ExchangeService) CreateBundle(ctx context.Context, owner domain.Account, holdings []domain.Holding) (b domain.Bundle, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "create_bundle", start, err, slog.String("account", string(owner)))
	}(time.Now())
	return s.engine.CreateBundle(owner, holdings)
}

// DissolveBundle returns a free bundle's holdings to its owner.
func (s *ExchangeService) DissolveBundle(ctx context.Context, id uint64, caller domain.Account) (err error) {
	defer func(start time.Time) {
		s.observe(ctx, "dissolve_bundle", start, err, slog.Uint64("bundle_id", id))
	}(time.Now())
	return s.engine.DissolveBundle(id, caller)
}

// Propose records a conditional exchange and escrows its inputs.
func (s *ExchangeService) Propose(ctx context.Context, proposer domain.Account, inputs, outputs []domain.Item, cond domain.Condition) (p domain.Proposal, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "propose", start, err,
			slog.String("account", string(proposer)),
			slog.String("condition", string(cond.Kind)),
			slog.Uint64("proposal_id", p.ID),
		)
	}(time.Now())
	return s.engine.Propose(ctx, proposer, inputs, outputs, cond)
}

// Cancel withdraws an open proposal on behalf of its proposer.
func (s *ExchangeService) Cancel(ctx context.Context, id uint64, caller domain.Account) (p domain.Proposal, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "cancel", start, err, slog.Uint64("proposal_id", id))
	}(time.Now())
	return s.engine.Cancel(id, caller)
}

// IsMet evaluates a proposal's condition without side effects.
func (s *ExchangeService) IsMet(ctx context.Context, id uint64) (met bool, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "is_met", start, err, slog.Uint64("proposal_id", id))
	}(time.Now())
	return s.engine.IsMet(id)
}

// Execute measures a proposal and settles it if its condition holds.
func (s *ExchangeService) Execute(ctx context.Context, id uint64, caller domain.Account) (p domain.Proposal, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "execute", start, err, slog.Uint64("proposal_id", id), slog.String("caller", string(caller)))
	}(time.Now())
	p, err = s.engine.Execute(id, caller)
	if err == nil {
		s.metrics.ProposalExecuted()
	}
	return p, err
}

// Solve submits a puzzle solution.
func (s *ExchangeService) Solve(ctx context.Context, id uint64, solver domain.Account, solution common.Hash) (pz domain.Puzzle, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "solve", start, err, slog.Uint64("proposal_id", id), slog.String("account", string(solver)))
	}(time.Now())
	return s.engine.Solve(id, solver, solution)
}

// AddLiquidity moves amount of asset into the pool and mints shares.
func (s *ExchangeService) AddLiquidity(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) (shares domain.Amount, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "add_liquidity", start, err, slog.String("account", string(account)), slog.String("asset", string(asset)))
	}(time.Now())
	return s.engine.AddLiquidity(ctx, account, asset, amount)
}

// RemoveLiquidity burns shares and pays out the entitled amount of asset.
func (s *ExchangeService) RemoveLiquidity(ctx context.Context, account domain.Account, shares domain.Amount, asset domain.AssetType) (amount domain.Amount, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "remove_liquidity", start, err, slog.String("account", string(account)), slog.String("asset", string(asset)))
	}(time.Now())
	return s.engine.RemoveLiquidity(ctx, account, shares, asset)
}

// SetPrice writes the oracle register and mirrors the value into the price
// cache so other readers see it. A cache failure is logged, not returned.
func (s *ExchangeService) SetPrice(ctx context.Context, asset domain.AssetType, price uint64) (err error) {
	defer func(start time.Time) {
		s.observe(ctx, "set_price", start, err, slog.String("asset", string(asset)))
	}(time.Now())
	if err := s.engine.SetPrice(asset, price); err != nil {
		return err
	}
	if cacheErr := s.prices.SetPrice(ctx, asset, price, time.Now().UTC()); cacheErr != nil {
		s.logger.WarnContext(ctx, "exchange_service: price cache write failed",
			slog.String("asset", string(asset)),
			slog.String("error", cacheErr.Error()),
		)
	}
	return nil
}

// SetPaused flips the pause switch and records who did it.
func (s *ExchangeService) SetPaused(ctx context.Context, paused bool, actor string) error {
	if !s.admin.SetPaused(paused) {
		return nil
	}
	s.logger.WarnContext(ctx, "exchange_service: pause switched",
		slog.Bool("paused", paused),
		slog.String("actor", actor),
	)
	if err := s.audit.Log(ctx, "admin.pause", map[string]any{"paused": paused, "actor": actor}); err != nil {
		return fmt.Errorf("exchange_service: audit pause: %w", err)
	}
	return nil
}

// Reconcile audits the ledger. An imbalance is logged at error level.
func (s *ExchangeService) Reconcile(ctx context.Context) ([]exchange.AssetAudit, error) {
	rows, err := s.engine.Reconcile()
	if err != nil {
		s.logger.ErrorContext(ctx, "exchange_service: reconcile failed", slog.String("error", err.Error()))
	}
	return rows, err
}

// Status summarizes the exchange.
func (s *ExchangeService) Status() Status {
	return Status{
		Seq:           s.engine.Seq(),
		OpenProposals: s.engine.OpenCount(),
		Executed:      s.engine.ExecutedCount(),
		TotalShares:   s.engine.TotalShares(),
		Paused:        s.admin.Paused(),
		FeeRateBps:    s.admin.FeeRateBps(),
	}
}

// Proposal returns a proposal by id.
func (s *ExchangeService) Proposal(id uint64) (domain.Proposal, error) {
	return s.engine.Proposal(id)
}

// ListOpenProposals pages open proposals in id order.
func (s *ExchangeService) ListOpenProposals(afterID uint64, limit int) []domain.Proposal {
	return s.engine.ListOpenProposals(afterID, limit)
}

// Bundle returns a bundle by id.
func (s *ExchangeService) Bundle(id uint64) (domain.Bundle, error) {
	return s.engine.Bundle(id)
}

// Puzzle returns the puzzle attached to a proposal.
func (s *ExchangeService) Puzzle(id uint64) (domain.Puzzle, error) {
	return s.engine.Puzzle(id)
}

// Balance returns one ledger balance.
func (s *ExchangeService) Balance(account domain.Account, asset domain.AssetType) domain.Amount {
	return s.engine.Balance(account, asset)
}

// Balances returns every non-zero balance of account.
func (s *ExchangeService) Balances(account domain.Account) map[domain.AssetType]domain.Amount {
	return s.engine.Balances(account)
}

// Position returns an account's pool shares.
func (s *ExchangeService) Position(account domain.Account) domain.LiquidityPosition {
	return s.engine.Position(account)
}

// Price returns the oracle register for asset.
func (s *ExchangeService) Price(asset domain.AssetType) (uint64, bool) {
	return s.engine.Price(asset)
}
