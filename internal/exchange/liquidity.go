package exchange

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/condex/internal/domain"
)

// AddLiquidity moves amount of asset into the pool through custody and mints
// shares. The first provider of an asset (or any provider while the pool
// holds none of it) receives shares equal to amount; later providers receive
// amount * totalShares / poolBefore.
//
// Fees stay commingled in the pool balance, so redemption value tracks the
// holdings at redemption time rather than the time a position was held.
func (e *Engine) AddLiquidity(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) (domain.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWritable(); err != nil {
		return 0, fmt.Errorf("exchange: add liquidity: %w", err)
	}
	if err := checkAccount(account); err != nil {
		return 0, fmt.Errorf("exchange: add liquidity: %w", err)
	}
	if err := e.checkAsset(asset); err != nil {
		return 0, fmt.Errorf("exchange: add liquidity: %w", err)
	}
	if amount == 0 {
		return 0, fmt.Errorf("exchange: add liquidity: %w", domain.ErrZeroAmount)
	}

	poolBefore := e.pool[asset]
	minted := amount
	if e.totalShares > 0 && poolBefore > 0 {
		var err error
		minted, err = mulDiv(amount, e.totalShares, poolBefore)
		if err != nil {
			return 0, fmt.Errorf("exchange: add liquidity: %w", err)
		}
	}
	if minted == 0 {
		return 0, fmt.Errorf("exchange: add liquidity: %w", domain.ErrZeroShares)
	}
	poolAfter, err := addAmount(poolBefore, amount)
	if err != nil {
		return 0, fmt.Errorf("exchange: add liquidity: %w", err)
	}
	totalAfter, err := addAmount(e.totalShares, minted)
	if err != nil {
		return 0, fmt.Errorf("exchange: add liquidity: %w", err)
	}
	deposited, err := addAmount(e.deposited[asset], amount)
	if err != nil {
		return 0, fmt.Errorf("exchange: add liquidity: %w", err)
	}

	if err := e.custody.Receive(ctx, account, asset, amount); err != nil {
		return 0, fmt.Errorf("exchange: add liquidity: custody receive: %w", err)
	}

	e.pool[asset] = poolAfter
	e.shares[account] += minted
	e.totalShares = totalAfter
	e.deposited[asset] = deposited

	e.emit(domain.Event{
		Type:    domain.EventLiquidityAdded,
		Account: account,
		Asset:   asset,
		Amount:  amount,
		Detail:  map[string]any{"shares": minted, "total_shares": totalAfter},
	})
	return minted, nil
}

// RemoveLiquidity burns shares and pays out shares * pool(asset) /
// totalShares of asset through custody.
func (e *Engine) RemoveLiquidity(ctx context.Context, account domain.Account, shares domain.Amount, asset domain.AssetType) (domain.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkAccount(account); err != nil {
		return 0, fmt.Errorf("exchange: remove liquidity: %w", err)
	}
	if err := e.checkAsset(asset); err != nil {
		return 0, fmt.Errorf("exchange: remove liquidity: %w", err)
	}
	if shares == 0 {
		return 0, fmt.Errorf("exchange: remove liquidity: %w", domain.ErrZeroAmount)
	}
	if e.shares[account] < shares {
		return 0, fmt.Errorf("exchange: remove liquidity: %w", domain.ErrInsufficientShares)
	}

	amount, err := mulDiv(shares, e.pool[asset], e.totalShares)
	if err != nil {
		return 0, fmt.Errorf("exchange: remove liquidity: %w", err)
	}
	if amount == 0 {
		return 0, fmt.Errorf("exchange: remove liquidity: zero entitlement: %w", domain.ErrZeroAmount)
	}
	withdrawn, err := addAmount(e.withdrawn[asset], amount)
	if err != nil {
		return 0, fmt.Errorf("exchange: remove liquidity: %w", err)
	}

	if err := e.custody.Payout(ctx, account, asset, amount); err != nil {
		return 0, fmt.Errorf("exchange: remove liquidity: custody payout: %w", err)
	}

	e.setHolding(domain.PoolAccount, asset, e.pool[asset]-amount)
	e.shares[account] -= shares
	if e.shares[account] == 0 {
		delete(e.shares, account)
	}
	e.totalShares -= shares
	e.withdrawn[asset] = withdrawn

	e.emit(domain.Event{
		Type:    domain.EventLiquidityRemoved,
		Account: account,
		Asset:   asset,
		Amount:  amount,
		Detail:  map[string]any{"shares": shares, "total_shares": e.totalShares},
	})
	return amount, nil
}

// Position returns the liquidity position of account.
func (e *Engine) Position(account domain.Account) domain.LiquidityPosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.LiquidityPosition{Account: account, Shares: e.shares[account]}
}

// TotalShares returns the number of outstanding pool shares.
func (e *Engine) TotalShares() domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalShares
}

// PoolBalance returns the pool balance of asset, fees included.
func (e *Engine) PoolBalance(asset domain.AssetType) domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool[asset]
}
