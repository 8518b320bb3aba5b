package exchange

import (
	"fmt"

	"github.com/alanyoungcy/condex/internal/domain"
)

// IsMet reports whether the proposal's condition currently holds. It has no
// side effects and returns false for any proposal that is not open.
func (e *Engine) IsMet(id uint64) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.proposals[id]
	if !ok {
		return false, fmt.Errorf("exchange: is met %d: %w", id, domain.ErrProposalNotFound)
	}
	return e.isMet(p), nil
}

// isMet evaluates p against the current registers. Callers hold e.mu.
func (e *Engine) isMet(p *domain.Proposal) bool {
	if p.Status != domain.ProposalOpen {
		return false
	}

	c := p.Condition
	switch c.Kind {
	case domain.ConditionTimeAfter:
		return !e.clock.Now().Before(c.At)
	case domain.ConditionPriceAtLeast:
		price, ok := e.prices[c.Asset]
		return ok && price >= c.Threshold
	case domain.ConditionCounterAtLeast:
		return e.executed >= c.Threshold
	case domain.ConditionPuzzleSolved:
		pz, ok := e.puzzles[p.ID]
		return ok && pz.Solved
	default:
		return false
	}
}

// normalizeCondition validates c and keeps only the fields its kind uses.
func (e *Engine) normalizeCondition(c domain.Condition) (domain.Condition, error) {
	switch c.Kind {
	case domain.ConditionTimeAfter:
		if c.At.IsZero() {
			return domain.Condition{}, fmt.Errorf("time condition without timestamp: %w", domain.ErrInvalidCondition)
		}
		return domain.TimeAfter(c.At.UTC()), nil
	case domain.ConditionPriceAtLeast:
		if err := e.checkAsset(c.Asset); err != nil {
			return domain.Condition{}, err
		}
		return domain.PriceAtLeast(c.Asset, c.Threshold), nil
	case domain.ConditionCounterAtLeast:
		return domain.CounterAtLeast(c.Threshold), nil
	case domain.ConditionPuzzleSolved:
		// The challenge is always derived by the exchange.
		return domain.PuzzleSolved(), nil
	default:
		return domain.Condition{}, fmt.Errorf("condition kind %q: %w", c.Kind, domain.ErrInvalidCondition)
	}
}

// SetPrice writes the oracle register for asset. It is the privileged write
// path of the external oracle role.
func (e *Engine) SetPrice(asset domain.AssetType, price uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkAsset(asset); err != nil {
		return fmt.Errorf("exchange: set price: %w", err)
	}
	if prev, ok := e.prices[asset]; ok && prev == price {
		return nil
	}
	e.prices[asset] = price
	e.emit(domain.Event{
		Type:   domain.EventOraclePriceUpdated,
		Asset:  asset,
		Detail: map[string]any{"price": price},
	})
	return nil
}

// Price returns the oracle register value for asset.
func (e *Engine) Price(asset domain.AssetType) (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.prices[asset]
	return p, ok
}

// Prices returns a copy of every oracle register.
func (e *Engine) Prices() map[domain.AssetType]uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[domain.AssetType]uint64, len(e.prices))
	for a, p := range e.prices {
		out[a] = p
	}
	return out
}

// ExecutedCount returns the global executed-proposal counter.
func (e *Engine) ExecutedCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.executed
}
