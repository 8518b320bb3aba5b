package exchange

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/condex/internal/domain"
)

// escrowPlan is the validated set of changes a proposal will make on creation.
type escrowPlan struct {
	debits     tally
	inBundles  []uint64
	outBundles []uint64
}

// Propose records a proposal and escrows its inputs as one unit. Plain inputs
// are debited from the proposer, input bundles move to the pool and output
// bundles are reserved. For puzzle conditions a challenge is issued.
func (e *Engine) Propose(ctx context.Context, proposer domain.Account, inputs, outputs []domain.Item, cond domain.Condition) (domain.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWritable(); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: propose: %w", err)
	}
	if err := checkAccount(proposer); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: propose: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return domain.Proposal{}, fmt.Errorf("exchange: propose: %w", domain.ErrEmptyItems)
	}
	cond, err := e.normalizeCondition(cond)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: propose: %w", err)
	}
	plan, err := e.planEscrow(proposer, inputs, outputs)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: propose: %w", err)
	}

	id := e.nextProposalID + 1
	var puzzle *domain.Puzzle
	if cond.Kind == domain.ConditionPuzzleSolved {
		challenge, err := e.issueChallenge(ctx, id)
		if err != nil {
			return domain.Proposal{}, fmt.Errorf("exchange: propose: %w", err)
		}
		cond.Challenge = challenge
		puzzle = &domain.Puzzle{ProposalID: id, Challenge: challenge}
	}

	// Everything below is infallible.
	e.nextProposalID = id
	e.debitAll(proposer, plan.debits)
	for _, bid := range plan.inBundles {
		b := e.bundles[bid]
		b.Owner = domain.PoolAccount
		b.LockedBy = id
	}
	for _, bid := range plan.outBundles {
		e.bundles[bid].LockedBy = id
	}
	p := &domain.Proposal{
		ID:        id,
		Proposer:  proposer,
		Inputs:    append([]domain.Item(nil), inputs...),
		Outputs:   append([]domain.Item(nil), outputs...),
		Condition: cond,
		Status:    domain.ProposalOpen,
		CreatedAt: e.clock.Now(),
	}
	e.proposals[id] = p
	if puzzle != nil {
		e.puzzles[id] = puzzle
	}
	e.open.insert(id)

	out := p.Clone()
	e.emit(domain.Event{
		Type:       domain.EventProposalCreated,
		ProposalID: id,
		Account:    proposer,
		Proposal:   &out,
	})
	return p.Clone(), nil
}

// Cancel reverses a proposal's escrow exactly and marks it cancelled. Only
// the proposer may cancel, and only while the proposal is open.
func (e *Engine) Cancel(id uint64, caller domain.Account) (domain.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkAccount(caller); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: cancel %d: %w", id, err)
	}
	p, ok := e.proposals[id]
	if !ok {
		return domain.Proposal{}, fmt.Errorf("exchange: cancel %d: %w", id, domain.ErrProposalNotFound)
	}
	if caller != p.Proposer {
		return domain.Proposal{}, fmt.Errorf("exchange: cancel %d: %w", id, domain.ErrNotProposer)
	}
	if p.Status != domain.ProposalOpen {
		return domain.Proposal{}, fmt.Errorf("exchange: cancel %d: %w", id, domain.ErrAlreadySettled)
	}

	refund := plainTotals(p.Inputs)
	if err := e.canCredit(p.Proposer, refund); err != nil {
		return domain.Proposal{}, fmt.Errorf("exchange: cancel %d: %w", id, err)
	}

	e.creditAll(p.Proposer, refund)
	for _, it := range p.Inputs {
		if it.Kind == domain.ItemBundle {
			b := e.bundles[it.BundleID]
			b.Owner = p.Proposer
			b.LockedBy = 0
		}
	}
	for _, it := range p.Outputs {
		if it.Kind == domain.ItemBundle {
			e.bundles[it.BundleID].LockedBy = 0
		}
	}
	e.settle(p, domain.ProposalCancelled, caller)

	out := p.Clone()
	e.emit(domain.Event{
		Type:       domain.EventProposalCancelled,
		ProposalID: id,
		Account:    caller,
		Proposal:   &out,
	})
	return p.Clone(), nil
}

// Proposal returns a copy of the proposal with the given id.
func (e *Engine) Proposal(id uint64) (domain.Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.proposals[id]
	if !ok {
		return domain.Proposal{}, fmt.Errorf("exchange: proposal %d: %w", id, domain.ErrProposalNotFound)
	}
	return p.Clone(), nil
}

// ListOpenProposals returns up to limit open proposals with id greater than
// afterID in ascending id order. It walks the open index only.
func (e *Engine) ListOpenProposals(afterID uint64, limit int) []domain.Proposal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := e.open.after(afterID, limit)
	out := make([]domain.Proposal, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.proposals[id].Clone())
	}
	return out
}

// OpenCount returns the number of open proposals.
func (e *Engine) OpenCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.open.len()
}

// settle flips p into a terminal status and drops it from the open index.
func (e *Engine) settle(p *domain.Proposal, status domain.ProposalStatus, by domain.Account) {
	now := e.clock.Now()
	p.Status = status
	p.SettledAt = &now
	p.SettledBy = by
	e.open.remove(p.ID)
}

func (e *Engine) planEscrow(proposer domain.Account, inputs, outputs []domain.Item) (escrowPlan, error) {
	plan := escrowPlan{debits: tally{}}
	seen := make(map[uint64]bool)

	for _, it := range inputs {
		if err := e.checkItem(it); err != nil {
			return escrowPlan{}, err
		}
		if it.Kind == domain.ItemPlain {
			if err := plan.debits.add(it.Asset, it.Amount); err != nil {
				return escrowPlan{}, err
			}
			continue
		}
		b, err := e.referencedBundle(it.BundleID, seen)
		if err != nil {
			return escrowPlan{}, err
		}
		if b.Owner != proposer {
			return escrowPlan{}, domain.ErrNotOwner
		}
		plan.inBundles = append(plan.inBundles, b.ID)
	}
	if err := e.canDebit(proposer, plan.debits); err != nil {
		return escrowPlan{}, err
	}

	outs := tally{}
	for _, it := range outputs {
		if err := e.checkItem(it); err != nil {
			return escrowPlan{}, err
		}
		if it.Kind == domain.ItemPlain {
			if err := outs.add(it.Asset, it.Amount); err != nil {
				return escrowPlan{}, err
			}
			continue
		}
		b, err := e.referencedBundle(it.BundleID, seen)
		if err != nil {
			return escrowPlan{}, err
		}
		if b.Owner != domain.PoolAccount {
			return escrowPlan{}, fmt.Errorf("bundle %d is not pool inventory: %w", b.ID, domain.ErrInvalidItem)
		}
		plan.outBundles = append(plan.outBundles, b.ID)
	}
	return plan, nil
}

// referencedBundle resolves a bundle item, rejecting locked bundles and
// bundles already referenced by the same proposal.
func (e *Engine) referencedBundle(id uint64, seen map[uint64]bool) (*domain.Bundle, error) {
	b, ok := e.bundles[id]
	if !ok {
		return nil, fmt.Errorf("bundle %d: %w", id, domain.ErrBundleNotFound)
	}
	if seen[id] {
		return nil, fmt.Errorf("bundle %d: %w", id, domain.ErrDuplicateBundle)
	}
	if b.Locked() {
		return nil, fmt.Errorf("bundle %d: %w", id, domain.ErrBundleLocked)
	}
	seen[id] = true
	return b, nil
}

func (e *Engine) checkItem(it domain.Item) error {
	switch it.Kind {
	case domain.ItemPlain:
		if it.BundleID != 0 {
			return domain.ErrInvalidItem
		}
		if err := e.checkAsset(it.Asset); err != nil {
			return err
		}
		if it.Amount == 0 {
			return domain.ErrZeroAmount
		}
		return nil
	case domain.ItemBundle:
		if it.BundleID == 0 || it.Asset != "" || it.Amount != 0 {
			return domain.ErrInvalidItem
		}
		return nil
	default:
		return domain.ErrInvalidItem
	}
}

// plainTotals sums the plain items per asset. Amounts were range-checked
// when the proposal was created.
func plainTotals(items []domain.Item) tally {
	out := tally{}
	for _, it := range items {
		if it.Kind == domain.ItemPlain {
			out[it.Asset] += it.Amount
		}
	}
	return out
}
