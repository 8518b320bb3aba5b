package exchange

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/condex/internal/domain"
)

// Deposit moves value in through custody and credits account. The balance is
// only credited once custody has accepted the transfer.
func (e *Engine) Deposit(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWritable(); err != nil {
		return fmt.Errorf("exchange: deposit: %w", err)
	}
	if err := checkAccount(account); err != nil {
		return fmt.Errorf("exchange: deposit: %w", err)
	}
	if err := e.checkAsset(asset); err != nil {
		return fmt.Errorf("exchange: deposit: %w", err)
	}
	if amount == 0 {
		return fmt.Errorf("exchange: deposit: %w", domain.ErrZeroAmount)
	}
	if _, err := addAmount(e.holding(account, asset), amount); err != nil {
		return fmt.Errorf("exchange: deposit: %w", err)
	}
	total, err := addAmount(e.deposited[asset], amount)
	if err != nil {
		return fmt.Errorf("exchange: deposit: %w", err)
	}

	if err := e.custody.Receive(ctx, account, asset, amount); err != nil {
		return fmt.Errorf("exchange: deposit: custody receive: %w", err)
	}

	e.setHolding(account, asset, e.holding(account, asset)+amount)
	e.deposited[asset] = total
	e.emit(domain.Event{
		Type:    domain.EventDeposited,
		Account: account,
		Asset:   asset,
		Amount:  amount,
	})
	return nil
}

// Withdraw pays value out through custody and debits account. A failed payout
// leaves the balance untouched.
func (e *Engine) Withdraw(ctx context.Context, account domain.Account, asset domain.AssetType, amount domain.Amount) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkAccount(account); err != nil {
		return fmt.Errorf("exchange: withdraw: %w", err)
	}
	if err := e.checkAsset(asset); err != nil {
		return fmt.Errorf("exchange: withdraw: %w", err)
	}
	if amount == 0 {
		return fmt.Errorf("exchange: withdraw: %w", domain.ErrZeroAmount)
	}
	bal := e.holding(account, asset)
	if bal < amount {
		return fmt.Errorf("exchange: withdraw: %w", domain.ErrInsufficientBalance)
	}
	total, err := addAmount(e.withdrawn[asset], amount)
	if err != nil {
		return fmt.Errorf("exchange: withdraw: %w", err)
	}

	if err := e.custody.Payout(ctx, account, asset, amount); err != nil {
		return fmt.Errorf("exchange: withdraw: custody payout: %w", err)
	}

	e.setHolding(account, asset, bal-amount)
	e.withdrawn[asset] = total
	e.emit(domain.Event{
		Type:    domain.EventWithdrawn,
		Account: account,
		Asset:   asset,
		Amount:  amount,
	})
	return nil
}

// Balance returns the free balance of account in asset. For PoolAccount it
// returns the pool balance.
func (e *Engine) Balance(account domain.Account, asset domain.AssetType) domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.holding(account, asset)
}

// Balances returns a copy of every non-zero free balance of account.
func (e *Engine) Balances(account domain.Account) map[domain.AssetType]domain.Amount {
	e.mu.RLock()
	defer e.mu.RUnlock()

	src := e.balances[account]
	if account == domain.PoolAccount {
		src = e.pool
	}
	out := make(map[domain.AssetType]domain.Amount, len(src))
	for asset, amt := range src {
		out[asset] = amt
	}
	return out
}

// holding reads the balance of account, routing PoolAccount to the pool.
func (e *Engine) holding(account domain.Account, asset domain.AssetType) domain.Amount {
	if account == domain.PoolAccount {
		return e.pool[asset]
	}
	return e.balances[account][asset]
}

// setHolding writes the balance of account, dropping zero entries.
func (e *Engine) setHolding(account domain.Account, asset domain.AssetType, amount domain.Amount) {
	if account == domain.PoolAccount {
		if amount == 0 {
			delete(e.pool, asset)
			return
		}
		e.pool[asset] = amount
		return
	}

	row := e.balances[account]
	if amount == 0 {
		if row != nil {
			delete(row, asset)
			if len(row) == 0 {
				delete(e.balances, account)
			}
		}
		return
	}
	if row == nil {
		row = make(map[domain.AssetType]domain.Amount)
		e.balances[account] = row
	}
	row[asset] = amount
}

// canDebit reports whether account covers every amount in need.
func (e *Engine) canDebit(account domain.Account, need tally) error {
	for asset, amt := range need {
		if e.holding(account, asset) < amt {
			if account == domain.PoolAccount {
				return domain.ErrInsufficientPoolLiquidity
			}
			return domain.ErrInsufficientBalance
		}
	}
	return nil
}

// canCredit reports whether crediting every amount in add to account stays
// within range.
func (e *Engine) canCredit(account domain.Account, add tally) error {
	for asset, amt := range add {
		if _, err := addAmount(e.holding(account, asset), amt); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) debitAll(account domain.Account, need tally) {
	for asset, amt := range need {
		e.setHolding(account, asset, e.holding(account, asset)-amt)
	}
}

func (e *Engine) creditAll(account domain.Account, add tally) {
	for asset, amt := range add {
		e.setHolding(account, asset, e.holding(account, asset)+amt)
	}
}
