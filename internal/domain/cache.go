package domain

import (
	"context"
	"time"
)

// PriceCache holds the latest externally published oracle prices. Prices are
// fixed-point integers in the unit the oracle publishes.
type PriceCache interface {
	SetPrice(ctx context.Context, asset AssetType, price uint64, ts time.Time) error
	GetPrice(ctx context.Context, asset AssetType) (uint64, time.Time, error)
	GetPrices(ctx context.Context, assets []AssetType) (map[AssetType]uint64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Lease is a held distributed lock.
type Lease interface {
	// Refresh extends the lease by its TTL; it fails with ErrLockHeld when the
	// lease was lost to another holder.
	Refresh(ctx context.Context) error
	// Release gives the lease up. It is safe to call more than once.
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
