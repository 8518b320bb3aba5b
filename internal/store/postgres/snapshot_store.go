package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/condex/internal/domain"
)

// snapshotsKept is how many checkpoints survive pruning.
const snapshotsKept = 20

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save writes snap and prunes all but the most recent checkpoints in one
// transaction. A snapshot with an existing seq replaces the stored one.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot %d: %w", snap.Seq, err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const upsert = `
			INSERT INTO exchange_snapshots (seq, taken_at, body)
			VALUES ($1, $2, $3)
			ON CONFLICT (seq) DO UPDATE SET taken_at = EXCLUDED.taken_at, body = EXCLUDED.body`
		if _, err := tx.Exec(ctx, upsert, int64(snap.Seq), snap.TakenAt, body); err != nil {
			return err
		}

		const prune = `
			DELETE FROM exchange_snapshots
			WHERE seq NOT IN (SELECT seq FROM exchange_snapshots ORDER BY taken_at DESC LIMIT $1)`
		_, err := tx.Exec(ctx, prune, snapshotsKept)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: save snapshot %d: %w", snap.Seq, err)
	}
	return nil
}

// Latest returns the most recently taken snapshot, or domain.ErrNotFound.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.Snapshot, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM exchange_snapshots ORDER BY taken_at DESC LIMIT 1`,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: latest snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("postgres: unmarshal snapshot: %w", err)
	}
	return snap, nil
}
