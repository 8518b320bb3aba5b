package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/condex/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each asset is a
// hash at "<prefix>price:<asset>" with fields "price" (decimal uint64) and
// "ts" (unix nanoseconds).
type PriceCache struct {
	c *Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

func (pc *PriceCache) priceKey(asset domain.AssetType) string {
	return pc.c.key("price", string(asset))
}

// SetPrice stores the latest price and publish time for asset.
func (pc *PriceCache) SetPrice(ctx context.Context, asset domain.AssetType, price uint64, ts time.Time) error {
	fields := map[string]any{
		"price": strconv.FormatUint(price, 10),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.c.rdb.HSet(ctx, pc.priceKey(asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", asset, err)
	}
	return nil
}

// GetPrice returns the latest price of asset, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, asset domain.AssetType) (uint64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.priceKey(asset)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", asset, err)
	}
	price, ts, err := parsePriceHash(vals)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", asset, err)
	}
	return price, ts, nil
}

// GetPrices fetches several assets in one pipeline. Missing or malformed
// entries are omitted from the result.
func (pc *PriceCache) GetPrices(ctx context.Context, assets []domain.AssetType) (map[domain.AssetType]uint64, error) {
	out := make(map[domain.AssetType]uint64, len(assets))
	if len(assets) == 0 {
		return out, nil
	}

	pipe := pc.c.rdb.Pipeline()
	cmds := make(map[domain.AssetType]*redis.MapStringStringCmd, len(assets))
	for _, a := range assets {
		cmds[a] = pipe.HGetAll(ctx, pc.priceKey(a))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	for a, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		price, _, err := parsePriceHash(vals)
		if err != nil {
			continue
		}
		out[a] = price
	}
	return out, nil
}

func parsePriceHash(vals map[string]string) (uint64, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseUint(priceStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price %q: %w", priceStr, err)
	}

	var ts time.Time
	if tsStr, ok := vals["ts"]; ok {
		nanos, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("parse ts %q: %w", tsStr, err)
		}
		ts = time.Unix(0, nanos).UTC()
	}
	return price, ts, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
