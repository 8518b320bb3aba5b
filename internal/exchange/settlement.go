package exchange

import (
	"fmt"

	"github.com/alanyoungcy/condex/internal/domain"
)

// Execute settles an open proposal whose condition holds ("measurement").
// The pool must cover every plain output before inputs are credited; on any
// shortfall nothing changes and the proposal stays open. On success the
// plain inputs join the pool, the proposer receives each plain output less
// the fee, output bundles transfer to the proposer and the executed counter
// advances.
func (e *Engine) Execute(id uint64, caller domain.Account) (domain.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWritable(); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, err)
	}
	if err := checkAccount(caller); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, err)
	}
	p, ok := e.proposals[id]
	if !ok {
		return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, domain.ErrProposalNotFound)
	}
	if p.Status != domain.ProposalOpen {
		return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, domain.ErrAlreadySettled)
	}
	if !e.isMet(p) {
		return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, domain.ErrConditionNotMet)
	}

	outputs := plainTotals(p.Outputs)
	if err := e.canDebit(domain.PoolAccount, outputs); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, err)
	}

	bps := e.params.FeeRateBps()
	fees := tally{}
	paid := tally{}
	for _, it := range p.Outputs {
		if it.Kind != domain.ItemPlain {
			continue
		}
		fee, err := feeFor(it.Amount, bps)
		if err != nil {
			return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, err)
		}
		if fee > it.Amount {
			fee = it.Amount
		}
		fees[it.Asset] += fee
		paid[it.Asset] += it.Amount - fee
	}
	if err := e.canCredit(p.Proposer, paid); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, err)
	}
	inputs := plainTotals(p.Inputs)
	if err := e.canCredit(domain.PoolAccount, inputs); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: execute %d: %w", id, err)
	}

	// Everything below is infallible.
	e.debitAll(domain.PoolAccount, paid)
	e.creditAll(domain.PoolAccount, inputs)
	e.creditAll(p.Proposer, paid)
	for _, it := range p.Inputs {
		if it.Kind == domain.ItemBundle {
			e.bundles[it.BundleID].LockedBy = 0
		}
	}
	for _, it := range p.Outputs {
		if it.Kind == domain.ItemBundle {
			b := e.bundles[it.BundleID]
			b.Owner = p.Proposer
			b.LockedBy = 0
		}
	}
	if len(fees) > 0 {
		p.Fees = make(map[domain.AssetType]domain.Amount, len(fees))
		for asset, fee := range fees {
			p.Fees[asset] = fee
		}
	}
	e.settle(p, domain.ProposalExecuted, caller)
	e.executed++

	out := p.Clone()
	e.emit(domain.Event{
		Type:       domain.EventProposalExecuted,
		ProposalID: id,
		Account:    caller,
		Proposal:   &out,
		Detail:     map[string]any{"executed_count": e.executed},
	})
	return p.Clone(), nil
}
