package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/condex/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append writes evt to the journal. Appending the same event id twice is a
// no-op.
func (s *EventStore) Append(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("postgres: marshal event %d: %w", evt.Seq, err)
	}

	const query = `
		INSERT INTO exchange_events
			(id, seq, event_type, proposal_id, account, asset, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, query,
		evt.ID,
		int64(evt.Seq),
		string(evt.Type),
		nullableID(evt.ProposalID),
		nullableString(string(evt.Account)),
		nullableString(string(evt.Asset)),
		payload,
		evt.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %d: %w", evt.Seq, err)
	}
	return nil
}

// ListSince returns up to limit events with seq greater than afterSeq in
// journal order.
func (s *EventStore) ListSince(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT payload FROM exchange_events
		WHERE seq > $1
		ORDER BY seq ASC, recorded_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events since %d: %w", afterSeq, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		var evt domain.Event
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest journaled sequence number, or zero when the
// journal is empty.
func (s *EventStore) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM exchange_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: last event seq: %w", err)
	}
	return uint64(seq), nil
}

func nullableID(id uint64) *int64 {
	if id == 0 {
		return nil
	}
	v := int64(id)
	return &v
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
