package exchange

import (
	"fmt"

	"github.com/alanyoungcy/condex/internal/domain"
)

// CreateBundle debits every holding from owner and records them as one
// bundle. If any debit would fail nothing is debited.
func (e *Engine) CreateBundle(owner domain.Account, holdings []domain.Holding) (domain.Bundle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkWritable(); err != nil {
		return domain.Bundle{}, fmt.Errorf("exchange: create bundle: %w", err)
	}
	if err := checkAccount(owner); err != nil {
		return domain.Bundle{}, fmt.Errorf("exchange: create bundle: %w", err)
	}
	if len(holdings) == 0 {
		return domain.Bundle{}, fmt.Errorf("exchange: create bundle: %w", domain.ErrEmptyItems)
	}

	need := tally{}
	for _, h := range holdings {
		if err := e.checkAsset(h.Asset); err != nil {
			return domain.Bundle{}, fmt.Errorf("exchange: create bundle: %w", err)
		}
		if h.Amount == 0 {
			return domain.Bundle{}, fmt.Errorf("exchange: create bundle: %w", domain.ErrZeroAmount)
		}
		if err := need.add(h.Asset, h.Amount); err != nil {
			return domain.Bundle{}, fmt.Errorf("exchange: create bundle: %w", err)
		}
	}
	if err := e.canDebit(owner, need); err != nil {
		return domain.Bundle{}, fmt.Errorf("exchange: create bundle: %w", err)
	}

	e.debitAll(owner, need)
	e.nextBundleID++
	b := &domain.Bundle{
		ID:       e.nextBundleID,
		Owner:    owner,
		Holdings: append([]domain.Holding(nil), holdings...),
	}
	e.bundles[b.ID] = b

	e.emit(domain.Event{
		Type:     domain.EventBundleCreated,
		BundleID: b.ID,
		Account:  owner,
		Detail:   map[string]any{"holdings": b.Clone().Holdings},
	})
	return b.Clone(), nil
}

// DissolveBundle credits the bundle contents back to its owner and deletes
// it. Bundles referenced by an open proposal cannot be dissolved.
func (e *Engine) DissolveBundle(id uint64, caller domain.Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkAccount(caller); err != nil {
		return fmt.Errorf("exchange: dissolve bundle %d: %w", id, err)
	}
	b, ok := e.bundles[id]
	if !ok {
		return fmt.Errorf("exchange: dissolve bundle %d: %w", id, domain.ErrBundleNotFound)
	}
	if caller != b.Owner {
		return fmt.Errorf("exchange: dissolve bundle %d: %w", id, domain.ErrNotOwner)
	}
	if b.Locked() {
		return fmt.Errorf("exchange: dissolve bundle %d: %w", id, domain.ErrBundleLocked)
	}

	add := bundleContents(b)
	if err := e.canCredit(b.Owner, add); err != nil {
		return fmt.Errorf("exchange: dissolve bundle %d: %w", id, err)
	}

	e.creditAll(b.Owner, add)
	delete(e.bundles, id)

	e.emit(domain.Event{
		Type:     domain.EventBundleDissolved,
		BundleID: id,
		Account:  b.Owner,
	})
	return nil
}

// Bundle returns a copy of the bundle with the given id.
func (e *Engine) Bundle(id uint64) (domain.Bundle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	b, ok := e.bundles[id]
	if !ok {
		return domain.Bundle{}, fmt.Errorf("exchange: bundle %d: %w", id, domain.ErrBundleNotFound)
	}
	return b.Clone(), nil
}

func bundleContents(b *domain.Bundle) tally {
	out := tally{}
	for _, h := range b.Holdings {
		// Holdings were range-checked when the bundle was created.
		out[h.Asset] += h.Amount
	}
	return out
}
