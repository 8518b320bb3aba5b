package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Custody moves real value into and out of system-controlled holding. It is
// assumed atomic and must fail loudly rather than lose value.
type Custody interface {
	Receive(ctx context.Context, account Account, asset AssetType, amount Amount) error
	Payout(ctx context.Context, account Account, asset AssetType, amount Amount) error
}

// SeedSource yields a value unknown before the call. It is used only to
// derive puzzle challenges.
type SeedSource interface {
	Seed(ctx context.Context) ([]byte, error)
}

// ProofVerifier checks a puzzle solution against its challenge. The default
// implementation is exact equality, standing in for a verifiable delay
// function proof check.
type ProofVerifier interface {
	Verify(challenge, solution common.Hash) bool
}

// Clock supplies the current time to condition evaluation.
type Clock interface {
	Now() time.Time
}

// AdminParams are the read-only administrative inputs of the exchange.
type AdminParams interface {
	Paused() bool
	AssetAllowed(asset AssetType) bool
	FeeRateBps() uint32
}
