package exchange

import (
	"errors"
	"fmt"
	"sort"

	"github.com/alanyoungcy/condex/internal/domain"
)

// ErrImbalance is returned when per-asset holdings do not add up to the net
// value that entered through custody.
var ErrImbalance = errors.New("exchange: ledger imbalance")

// AssetAudit breaks down where one asset's value currently sits.
type AssetAudit struct {
	Asset     domain.AssetType `json:"asset"`
	Balances  domain.Amount    `json:"balances"`
	Pool      domain.Amount    `json:"pool"`
	Escrow    domain.Amount    `json:"escrow"`
	Bundled   domain.Amount    `json:"bundled"`
	Deposited domain.Amount    `json:"deposited"`
	Withdrawn domain.Amount    `json:"withdrawn"`
}

// Held is the value tracked inside the exchange.
func (a AssetAudit) Held() domain.Amount {
	return a.Balances + a.Pool + a.Escrow + a.Bundled
}

// Balanced reports whether held value equals deposited minus withdrawn.
func (a AssetAudit) Balanced() bool {
	return a.Withdrawn <= a.Deposited && a.Held() == a.Deposited-a.Withdrawn
}

// Reconcile audits every asset and fails with ErrImbalance if any asset is
// out of balance. The audit is returned in either case, sorted by asset.
func (e *Engine) Reconcile() ([]AssetAudit, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reconcile()
}

func (e *Engine) reconcile() ([]AssetAudit, error) {
	rows := make(map[domain.AssetType]*AssetAudit)
	row := func(asset domain.AssetType) *AssetAudit {
		r, ok := rows[asset]
		if !ok {
			r = &AssetAudit{Asset: asset}
			rows[asset] = r
		}
		return r
	}

	for _, bals := range e.balances {
		for asset, amt := range bals {
			row(asset).Balances += amt
		}
	}
	for asset, amt := range e.pool {
		row(asset).Pool += amt
	}
	e.open.each(func(id uint64) {
		for asset, amt := range plainTotals(e.proposals[id].Inputs) {
			row(asset).Escrow += amt
		}
	})
	for _, b := range e.bundles {
		for _, h := range b.Holdings {
			row(h.Asset).Bundled += h.Amount
		}
	}
	for asset, amt := range e.deposited {
		row(asset).Deposited = amt
	}
	for asset, amt := range e.withdrawn {
		row(asset).Withdrawn = amt
	}

	out := make([]AssetAudit, 0, len(rows))
	var bad []string
	for _, r := range rows {
		out = append(out, *r)
		if !r.Balanced() {
			bad = append(bad, string(r.Asset))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	if len(bad) > 0 {
		sort.Strings(bad)
		return out, fmt.Errorf("%w: %v", ErrImbalance, bad)
	}
	return out, nil
}

// Snapshot returns a deep copy of the full exchange state.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

func (e *Engine) snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		Seq:            e.seq,
		TakenAt:        e.clock.Now(),
		Balances:       make(map[domain.Account]map[domain.AssetType]domain.Amount, len(e.balances)),
		Pool:           copyAmounts(e.pool),
		Shares:         make(map[domain.Account]domain.Amount, len(e.shares)),
		TotalShares:    e.totalShares,
		Prices:         make(map[domain.AssetType]uint64, len(e.prices)),
		ExecutedCount:  e.executed,
		NextProposalID: e.nextProposalID,
		NextBundleID:   e.nextBundleID,
		Deposited:      copyAmounts(e.deposited),
		Withdrawn:      copyAmounts(e.withdrawn),
	}
	for acct, bals := range e.balances {
		snap.Balances[acct] = copyAmounts(bals)
	}
	for acct, n := range e.shares {
		snap.Shares[acct] = n
	}
	for asset, p := range e.prices {
		snap.Prices[asset] = p
	}
	for _, b := range e.bundles {
		snap.Bundles = append(snap.Bundles, b.Clone())
	}
	sort.Slice(snap.Bundles, func(i, j int) bool { return snap.Bundles[i].ID < snap.Bundles[j].ID })
	for _, p := range e.proposals {
		snap.Proposals = append(snap.Proposals, p.Clone())
	}
	sort.Slice(snap.Proposals, func(i, j int) bool { return snap.Proposals[i].ID < snap.Proposals[j].ID })
	for _, pz := range e.puzzles {
		snap.Puzzles = append(snap.Puzzles, *pz)
	}
	sort.Slice(snap.Puzzles, func(i, j int) bool { return snap.Puzzles[i].ProposalID < snap.Puzzles[j].ProposalID })
	return snap
}

// Restore replaces the full exchange state with snap. A snapshot that fails
// the ledger audit or references unknown entities is rejected and the
// previous state is kept.
func (e *Engine) Restore(snap domain.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.snapshot()
	if err := e.load(snap); err != nil {
		return e.rollback(prev, err)
	}
	if _, err := e.reconcile(); err != nil {
		return e.rollback(prev, err)
	}
	return nil
}

// rollback reloads prev after a failed restore. Callers hold e.mu.
func (e *Engine) rollback(prev domain.Snapshot, cause error) error {
	if err := e.load(prev); err != nil {
		return fmt.Errorf("exchange: restore: %w (rollback failed: %v)", cause, err)
	}
	return fmt.Errorf("exchange: restore: %w", cause)
}

func (e *Engine) load(snap domain.Snapshot) error {
	e.reset()
	for acct, bals := range snap.Balances {
		for asset, amt := range bals {
			e.setHolding(acct, asset, amt)
		}
	}
	for asset, amt := range snap.Pool {
		e.setHolding(domain.PoolAccount, asset, amt)
	}
	for acct, n := range snap.Shares {
		if n > 0 {
			e.shares[acct] = n
		}
	}
	e.totalShares = snap.TotalShares
	for asset, p := range snap.Prices {
		e.prices[asset] = p
	}
	e.executed = snap.ExecutedCount
	e.nextProposalID = snap.NextProposalID
	e.nextBundleID = snap.NextBundleID
	e.seq = snap.Seq
	e.deposited = copyAmounts(snap.Deposited)
	e.withdrawn = copyAmounts(snap.Withdrawn)

	for _, p := range snap.Proposals {
		if p.ID == 0 || p.ID > e.nextProposalID {
			return fmt.Errorf("proposal %d outside id range", p.ID)
		}
		cp := p.Clone()
		e.proposals[p.ID] = &cp
		if p.Status == domain.ProposalOpen {
			e.open.insert(p.ID)
		}
	}
	for _, b := range snap.Bundles {
		if b.ID == 0 || b.ID > e.nextBundleID {
			return fmt.Errorf("bundle %d outside id range", b.ID)
		}
		if b.Locked() {
			p, ok := e.proposals[b.LockedBy]
			if !ok || p.Status != domain.ProposalOpen {
				return fmt.Errorf("bundle %d locked by settled proposal %d", b.ID, b.LockedBy)
			}
		}
		cp := b.Clone()
		e.bundles[b.ID] = &cp
	}
	for _, pz := range snap.Puzzles {
		if _, ok := e.proposals[pz.ProposalID]; !ok {
			return fmt.Errorf("puzzle for unknown proposal %d", pz.ProposalID)
		}
		cp := pz
		e.puzzles[pz.ProposalID] = &cp
	}

	var sum domain.Amount
	for _, n := range e.shares {
		sum += n
	}
	if sum != e.totalShares {
		return fmt.Errorf("shares sum %d != total %d", sum, e.totalShares)
	}
	return nil
}

func copyAmounts(src map[domain.AssetType]domain.Amount) map[domain.AssetType]domain.Amount {
	out := make(map[domain.AssetType]domain.Amount, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
