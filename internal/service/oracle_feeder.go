package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/exchange"
)

// OracleFeeder copies externally published prices from the price cache into
// the engine's oracle registers. With an empty allow list it refreshes only
// assets whose register is already set.
type OracleFeeder struct {
	prices   domain.PriceCache
	engine   *exchange.Engine
	admin    *Admin
	interval time.Duration
	logger   *slog.Logger
}

// NewOracleFeeder creates an OracleFeeder polling every interval.
func NewOracleFeeder(prices domain.PriceCache, engine *exchange.Engine, admin *Admin, interval time.Duration, logger *slog.Logger) *OracleFeeder {
	return &OracleFeeder{
		prices:   prices,
		engine:   engine,
		admin:    admin,
		interval: interval,
		logger:   logger.With(slog.String("component", "oracle_feeder")),
	}
}

// Sync performs one poll and returns how many registers changed.
func (f *OracleFeeder) Sync(ctx context.Context) (int, error) {
	assets := f.admin.AllowedAssets()
	if assets == nil {
		for a := range f.engine.Prices() {
			assets = append(assets, a)
		}
	}
	if len(assets) == 0 {
		return 0, nil
	}

	latest, err := f.prices.GetPrices(ctx, assets)
	if err != nil {
		return 0, fmt.Errorf("oracle_feeder: read prices: %w", err)
	}

	changed := 0
	for asset, price := range latest {
		if cur, ok := f.engine.Price(asset); ok && cur == price {
			continue
		}
		if err := f.engine.SetPrice(asset, price); err != nil {
			f.logger.WarnContext(ctx, "oracle_feeder: register rejected price",
				slog.String("asset", string(asset)),
				slog.String("error", err.Error()),
			)
			continue
		}
		changed++
	}
	return changed, nil
}

// Run polls until ctx ends. A non-positive interval disables the feeder.
func (f *OracleFeeder) Run(ctx context.Context) error {
	if f.interval <= 0 {
		f.logger.InfoContext(ctx, "oracle_feeder: disabled")
		return nil
	}
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := f.Sync(ctx)
			if err != nil {
				f.logger.WarnContext(ctx, "oracle_feeder: sync failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				f.logger.DebugContext(ctx, "oracle_feeder: registers updated", slog.Int("count", n))
			}
		}
	}
}
