package domain

// Account identifies a ledger participant.
type Account string

// AssetType names a fungible asset tracked by the ledger.
type AssetType string

// Amount is a non-negative quantity in the asset's smallest unit.
type Amount = uint64

// PoolAccount is the sentinel owner of everything held by the liquidity pool,
// including bundles escrowed as proposal inputs.
const PoolAccount Account = "@pool"

// Holding is a single (asset, amount) pair.
type Holding struct {
	Asset  AssetType `json:"asset"`
	Amount Amount    `json:"amount"`
}

// Bundle groups several holdings into one owned, transferable unit.
type Bundle struct {
	ID       uint64    `json:"id"`
	Owner    Account   `json:"owner"`
	Holdings []Holding `json:"holdings"`
	// LockedBy is the id of the open proposal that references the bundle,
	// or zero when the bundle is free.
	LockedBy uint64 `json:"locked_by,omitempty"`
}

// Locked reports whether an open proposal references the bundle.
func (b Bundle) Locked() bool { return b.LockedBy != 0 }

// Clone returns a deep copy.
func (b Bundle) Clone() Bundle {
	out := b
	out.Holdings = append([]Holding(nil), b.Holdings...)
	return out
}

// LiquidityPosition is an account's share of the pool.
type LiquidityPosition struct {
	Account Account `json:"account"`
	Shares  Amount  `json:"shares"`
}
