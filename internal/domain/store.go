package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventStore persists the append-only exchange event journal.
type EventStore interface {
	Append(ctx context.Context, evt Event) error
	ListSince(ctx context.Context, afterSeq uint64, limit int) ([]Event, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// ProposalStore keeps a queryable projection of proposals for external
// indexers. The exchange itself never reads from it.
type ProposalStore interface {
	Upsert(ctx context.Context, p Proposal) error
	GetByID(ctx context.Context, id uint64) (Proposal, error)
	ListByStatus(ctx context.Context, status ProposalStatus, opts ListOpts) ([]Proposal, error)
	// ListSettledBefore returns settled proposals not yet archived whose
	// settlement happened before the cutoff, oldest first.
	ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]Proposal, error)
	MarkArchived(ctx context.Context, ids []uint64) error
}

// SnapshotStore persists exchange checkpoints.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
