package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ItemKind distinguishes plain asset items from bundle references.
type ItemKind string

const (
	ItemPlain  ItemKind = "plain"
	ItemBundle ItemKind = "bundle"
)

// Item is one side of a proposal: either a plain {asset, amount} or a
// reference to a bundle.
type Item struct {
	Kind     ItemKind  `json:"kind"`
	Asset    AssetType `json:"asset,omitempty"`
	Amount   Amount    `json:"amount,omitempty"`
	BundleID uint64    `json:"bundle_id,omitempty"`
}

// PlainItem builds a plain asset item.
func PlainItem(asset AssetType, amount Amount) Item {
	return Item{Kind: ItemPlain, Asset: asset, Amount: amount}
}

// BundleItem builds a bundle reference item.
func BundleItem(id uint64) Item {
	return Item{Kind: ItemBundle, BundleID: id}
}

// ConditionKind tags the Condition variant.
type ConditionKind string

const (
	ConditionTimeAfter      ConditionKind = "time_after"
	ConditionPriceAtLeast   ConditionKind = "price_at_least"
	ConditionCounterAtLeast ConditionKind = "counter_at_least"
	ConditionPuzzleSolved   ConditionKind = "puzzle_solved"
)

// Condition gates settlement of a proposal. Only the fields relevant to Kind
// are meaningful.
type Condition struct {
	Kind      ConditionKind `json:"kind"`
	At        time.Time     `json:"at,omitempty"`
	Asset     AssetType     `json:"asset,omitempty"`
	Threshold uint64        `json:"threshold,omitempty"`
	// Challenge is derived by the exchange for puzzle conditions; any value
	// supplied by the proposer is replaced.
	Challenge common.Hash `json:"challenge,omitempty"`
}

// TimeAfter is met once the clock reaches t.
func TimeAfter(t time.Time) Condition {
	return Condition{Kind: ConditionTimeAfter, At: t}
}

// PriceAtLeast is met once the oracle register for asset is >= threshold.
func PriceAtLeast(asset AssetType, threshold uint64) Condition {
	return Condition{Kind: ConditionPriceAtLeast, Asset: asset, Threshold: threshold}
}

// CounterAtLeast is met once the executed-proposal counter is >= threshold.
func CounterAtLeast(threshold uint64) Condition {
	return Condition{Kind: ConditionCounterAtLeast, Threshold: threshold}
}

// PuzzleSolved is met once the proposal's challenge has a recorded solution.
func PuzzleSolved() Condition {
	return Condition{Kind: ConditionPuzzleSolved}
}

// ProposalStatus is the lifecycle state of a proposal.
type ProposalStatus string

const (
	ProposalOpen      ProposalStatus = "open"
	ProposalExecuted  ProposalStatus = "executed"
	ProposalCancelled ProposalStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s ProposalStatus) Terminal() bool {
	return s == ProposalExecuted || s == ProposalCancelled
}

// Proposal is a recorded request to exchange inputs for outputs once its
// condition holds.
type Proposal struct {
	ID        uint64         `json:"id"`
	Proposer  Account        `json:"proposer"`
	Inputs    []Item         `json:"inputs"`
	Outputs   []Item         `json:"outputs"`
	Condition Condition      `json:"condition"`
	Status    ProposalStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	SettledAt *time.Time     `json:"settled_at,omitempty"`
	// SettledBy is the caller that executed or cancelled the proposal.
	SettledBy Account `json:"settled_by,omitempty"`
	// Fees holds the per-asset fee retained by the pool at execution.
	Fees map[AssetType]Amount `json:"fees,omitempty"`
}

// Clone returns a deep copy.
func (p Proposal) Clone() Proposal {
	out := p
	out.Inputs = append([]Item(nil), p.Inputs...)
	out.Outputs = append([]Item(nil), p.Outputs...)
	if p.SettledAt != nil {
		t := *p.SettledAt
		out.SettledAt = &t
	}
	if p.Fees != nil {
		out.Fees = make(map[AssetType]Amount, len(p.Fees))
		for k, v := range p.Fees {
			out.Fees[k] = v
		}
	}
	return out
}

// Puzzle is the computational challenge attached to a PuzzleSolved proposal.
type Puzzle struct {
	ProposalID uint64      `json:"proposal_id"`
	Challenge  common.Hash `json:"challenge"`
	Solved     bool        `json:"solved"`
	Solver     Account     `json:"solver,omitempty"`
	Solution   common.Hash `json:"solution,omitempty"`
}
