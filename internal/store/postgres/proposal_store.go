package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/condex/internal/domain"
)

// ProposalStore implements domain.ProposalStore using PostgreSQL. It is a
// projection fed from exchange events; the exchange never reads it back.
type ProposalStore struct {
	pool *pgxpool.Pool
}

// NewProposalStore creates a new ProposalStore backed by the given connection pool.
func NewProposalStore(pool *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

// Upsert inserts or replaces the projection row of p.
func (s *ProposalStore) Upsert(ctx context.Context, p domain.Proposal) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: marshal proposal %d: %w", p.ID, err)
	}

	const query = `
		INSERT INTO proposals (id, proposer, status, condition_kind, body, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			body       = EXCLUDED.body,
			settled_at = EXCLUDED.settled_at,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query,
		int64(p.ID),
		string(p.Proposer),
		string(p.Status),
		string(p.Condition.Kind),
		body,
		p.CreatedAt,
		p.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert proposal %d: %w", p.ID, err)
	}
	return nil
}

// GetByID returns the projected proposal, or domain.ErrProposalNotFound.
func (s *ProposalStore) GetByID(ctx context.Context, id uint64) (domain.Proposal, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM proposals WHERE id = $1`, int64(id)).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Proposal{}, domain.ErrProposalNotFound
	}
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("postgres: get proposal %d: %w", id, err)
	}
	return decodeProposal(body)
}

// ListByStatus returns projected proposals with the given status, newest first.
func (s *ProposalStore) ListByStatus(ctx context.Context, status domain.ProposalStatus, opts domain.ListOpts) ([]domain.Proposal, error) {
	query := `SELECT body FROM proposals WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryProposals(ctx, "list proposals by status", query, args...)
}

// ListSettledBefore returns unarchived settled proposals whose settlement
// happened before the cutoff, oldest first.
func (s *ProposalStore) ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]domain.Proposal, error) {
	if limit <= 0 {
		limit = 1000
	}
	const query = `
		SELECT body FROM proposals
		WHERE settled_at IS NOT NULL AND settled_at < $1 AND archived_at IS NULL
		ORDER BY settled_at ASC
		LIMIT $2`
	return s.queryProposals(ctx, "list settled proposals", query, before, limit)
}

// MarkArchived stamps the given proposals as archived.
func (s *ProposalStore) MarkArchived(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	params := make([]int64, len(ids))
	for i, id := range ids {
		params[i] = int64(id)
	}
	_, err := s.pool.Exec(ctx, `UPDATE proposals SET archived_at = NOW() WHERE id = ANY($1)`, params)
	if err != nil {
		return fmt.Errorf("postgres: mark %d proposals archived: %w", len(ids), err)
	}
	return nil
}

func (s *ProposalStore) queryProposals(ctx context.Context, op, query string, args ...any) ([]domain.Proposal, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}

	out := make([]domain.Proposal, 0, len(bodies))
	for _, body := range bodies {
		p, err := decodeProposal(body)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeProposal(body []byte) (domain.Proposal, error) {
	var p domain.Proposal
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.Proposal{}, fmt.Errorf("postgres: unmarshal proposal: %w", err)
	}
	return p, nil
}
