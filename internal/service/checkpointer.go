package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/exchange"
)

// Checkpointer persists engine snapshots and restores the latest one at
// startup. A checkpoint whose sequence has not advanced is skipped.
type Checkpointer struct {
	engine    *exchange.Engine
	snapshots domain.SnapshotStore
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	lastSeq uint64
	saved   bool
}

// NewCheckpointer creates a Checkpointer saving every interval.
func NewCheckpointer(engine *exchange.Engine, snapshots domain.SnapshotStore, interval time.Duration, logger *slog.Logger) *Checkpointer {
	return &Checkpointer{
		engine:    engine,
		snapshots: snapshots,
		interval:  interval,
		logger:    logger.With(slog.String("component", "checkpointer")),
	}
}

// Restore loads the latest stored snapshot into the engine. No stored
// snapshot leaves the engine empty and is not an error.
func (c *Checkpointer) Restore(ctx context.Context) error {
	snap, err := c.snapshots.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		c.logger.InfoContext(ctx, "checkpointer: no snapshot, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("checkpointer: load latest: %w", err)
	}
	if err := c.engine.Restore(snap); err != nil {
		return fmt.Errorf("checkpointer: restore seq %d: %w", snap.Seq, err)
	}

	c.mu.Lock()
	c.lastSeq, c.saved = snap.Seq, true
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "checkpointer: restored",
		slog.Uint64("seq", snap.Seq),
		slog.Time("taken_at", snap.TakenAt),
		slog.Int("proposals", len(snap.Proposals)),
	)
	return nil
}

// Checkpoint saves a snapshot if the engine moved since the last one and
// returns it. The bool is false when nothing was written.
func (c *Checkpointer) Checkpoint(ctx context.Context) (domain.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.saved && c.engine.Seq() == c.lastSeq {
		return domain.Snapshot{}, false, nil
	}
	snap := c.engine.Snapshot()
	if err := c.snapshots.Save(ctx, snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("checkpointer: save seq %d: %w", snap.Seq, err)
	}
	c.lastSeq, c.saved = snap.Seq, true
	c.logger.DebugContext(ctx, "checkpointer: saved", slog.Uint64("seq", snap.Seq))
	return snap, true, nil
}

// Run checkpoints every interval and once more on the way out.
func (c *Checkpointer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			if _, _, err := c.Checkpoint(finalCtx); err != nil {
				c.logger.ErrorContext(finalCtx, "checkpointer: final checkpoint failed", slog.String("error", err.Error()))
				return err
			}
			return nil
		case <-ticker.C:
			if _, _, err := c.Checkpoint(ctx); err != nil {
				c.logger.WarnContext(ctx, "checkpointer: checkpoint failed", slog.String("error", err.Error()))
			}
		}
	}
}
