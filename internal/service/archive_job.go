package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/condex/internal/domain"
	"github.com/alanyoungcy/condex/internal/exchange"
)

// ArchiveJob periodically moves settled proposals to cold storage and ships
// the latest checkpoint alongside them.
type ArchiveJob struct {
	archiver domain.Archiver
	engine   *exchange.Engine
	interval time.Duration
	after    time.Duration
	now      func() time.Time
	logger   *slog.Logger

	shipped    bool
	shippedSeq uint64
}

// NewArchiveJob creates a job archiving proposals settled more than after ago.
func NewArchiveJob(archiver domain.Archiver, engine *exchange.Engine, interval, after time.Duration, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archiver: archiver,
		engine:   engine,
		interval: interval,
		after:    after,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "archive_job")),
	}
}

// RunOnce archives proposals settled before the cutoff and, when the engine
// advanced past the last archived checkpoint, uploads a fresh snapshot.
func (j *ArchiveJob) RunOnce(ctx context.Context) error {
	cutoff := j.now().Add(-j.after)
	n, err := j.archiver.ArchiveProposals(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive_job: proposals: %w", err)
	}

	if !j.shipped {
		seq, found, err := j.archiver.LatestSnapshotSeq(ctx)
		if err != nil {
			return fmt.Errorf("archive_job: latest snapshot: %w", err)
		}
		j.shipped, j.shippedSeq = found, seq
	}

	var path string
	if !j.shipped || j.engine.Seq() != j.shippedSeq {
		snap := j.engine.Snapshot()
		if path, err = j.archiver.ArchiveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("archive_job: snapshot: %w", err)
		}
		j.shipped, j.shippedSeq = true, snap.Seq
	}

	j.logger.InfoContext(ctx, "archive_job: done",
		slog.Int64("proposals", n),
		slog.String("snapshot", path),
	)
	return nil
}

// Run archives every interval until ctx ends. A non-positive interval
// disables the job.
func (j *ArchiveJob) Run(ctx context.Context) error {
	if j.interval <= 0 {
		j.logger.InfoContext(ctx, "archive_job: disabled")
		return nil
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				j.logger.WarnContext(ctx, "archive_job: run failed", slog.String("error", err.Error()))
			}
		}
	}
}
