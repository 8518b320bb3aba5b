package domain

import "time"

// EventType names a committed state change.
type EventType string

const (
	EventDeposited          EventType = "deposited"
	EventWithdrawn          EventType = "withdrawn"
	EventBundleCreated      EventType = "bundle_created"
	EventBundleDissolved    EventType = "bundle_dissolved"
	EventProposalCreated    EventType = "proposal_created"
	EventProposalCancelled  EventType = "proposal_cancelled"
	EventProposalExecuted   EventType = "proposal_executed"
	EventPuzzleSolved       EventType = "puzzle_solved"
	EventLiquidityAdded     EventType = "liquidity_added"
	EventLiquidityRemoved   EventType = "liquidity_removed"
	EventOraclePriceUpdated EventType = "oracle_price_updated"
)

// Event is emitted by the exchange after every committed mutation. Seq is
// strictly increasing within one exchange instance.
type Event struct {
	ID         string         `json:"id"`
	Seq        uint64         `json:"seq"`
	Type       EventType      `json:"type"`
	ProposalID uint64         `json:"proposal_id,omitempty"`
	BundleID   uint64         `json:"bundle_id,omitempty"`
	Account    Account        `json:"account,omitempty"`
	Asset      AssetType      `json:"asset,omitempty"`
	Amount     Amount         `json:"amount,omitempty"`
	Proposal   *Proposal      `json:"proposal,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

// Snapshot is a complete, serializable copy of exchange state.
type Snapshot struct {
	Seq            uint64                           `json:"seq"`
	TakenAt        time.Time                        `json:"taken_at"`
	Balances       map[Account]map[AssetType]Amount `json:"balances"`
	Pool           map[AssetType]Amount             `json:"pool"`
	Shares         map[Account]Amount               `json:"shares"`
	TotalShares    Amount                           `json:"total_shares"`
	Bundles        []Bundle                         `json:"bundles"`
	Proposals      []Proposal                       `json:"proposals"`
	Puzzles        []Puzzle                         `json:"puzzles"`
	Prices         map[AssetType]uint64             `json:"prices"`
	ExecutedCount  uint64                           `json:"executed_count"`
	NextProposalID uint64                           `json:"next_proposal_id"`
	NextBundleID   uint64                           `json:"next_bundle_id"`
	Deposited      map[AssetType]Amount             `json:"deposited"`
	Withdrawn      map[AssetType]Amount             `json:"withdrawn"`
}
