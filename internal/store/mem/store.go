// Package mem provides in-process implementations of the persistence, cache
// and bus ports for standalone mode and tests.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/condex/internal/domain"
)

var (
	_ domain.EventStore    = (*EventStore)(nil)
	_ domain.ProposalStore = (*ProposalStore)(nil)
	_ domain.SnapshotStore = (*SnapshotStore)(nil)
	_ domain.AuditStore    = (*AuditStore)(nil)
)

// EventStore keeps the event journal in memory.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event
	ids    map[string]struct{}
}

// NewEventStore returns an empty journal.
func NewEventStore() *EventStore {
	return &EventStore{ids: map[string]struct{}{}}
}

func (s *EventStore) Append(_ context.Context, evt domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[evt.ID]; dup {
		return nil
	}
	s.ids[evt.ID] = struct{}{}
	s.events = append(s.events, evt)
	return nil
}

func (s *EventStore) ListSince(_ context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Event
	for _, e := range s.events {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EventStore) LastSeq(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last uint64
	for _, e := range s.events {
		last = max(last, e.Seq)
	}
	return last, nil
}

// ProposalStore keeps the proposal projection in memory.
type ProposalStore struct {
	mu       sync.RWMutex
	rows     map[uint64]domain.Proposal
	archived map[uint64]bool
}

// NewProposalStore returns an empty projection.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{rows: map[uint64]domain.Proposal{}, archived: map[uint64]bool{}}
}

func (s *ProposalStore) Upsert(_ context.Context, p domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ID] = p.Clone()
	return nil
}

func (s *ProposalStore) GetByID(_ context.Context, id uint64) (domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[id]
	if !ok {
		return domain.Proposal{}, domain.ErrProposalNotFound
	}
	return p.Clone(), nil
}

func (s *ProposalStore) ListByStatus(_ context.Context, status domain.ProposalStatus, opts domain.ListOpts) ([]domain.Proposal, error) {
	s.mu.RLock()
	var out []domain.Proposal
	for _, p := range s.rows {
		if p.Status != status || !within(p.CreatedAt, opts) {
			continue
		}
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, opts), nil
}

func (s *ProposalStore) ListSettledBefore(_ context.Context, before time.Time, limit int) ([]domain.Proposal, error) {
	s.mu.RLock()
	var out []domain.Proposal
	for id, p := range s.rows {
		if p.SettledAt == nil || !p.SettledAt.Before(before) || s.archived[id] {
			continue
		}
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SettledAt.Before(*out[j].SettledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ProposalStore) MarkArchived(_ context.Context, ids []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.archived[id] = true
	}
	return nil
}

// SnapshotStore keeps only the latest checkpoint.
type SnapshotStore struct {
	mu     sync.RWMutex
	latest *domain.Snapshot
	saves  int
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

func (s *SnapshotStore) Save(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &snap
	s.saves++
	return nil
}

func (s *SnapshotStore) Latest(context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return *s.latest, nil
}

// Saves reports how many snapshots were written.
func (s *SnapshotStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// AuditStore keeps audit rows in memory.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	now     func() time.Time
}

// NewAuditStore returns an empty audit log.
func NewAuditStore() *AuditStore {
	return &AuditStore{now: time.Now}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now(),
	})
	return nil
}

func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	var out []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if within(s.entries[i].CreatedAt, opts) {
			out = append(out, s.entries[i])
		}
	}
	s.mu.RUnlock()
	return page(out, opts), nil
}

func within(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}

func page[T any](rows []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(rows) {
			return nil
		}
		rows = rows[opts.Offset:]
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows
}
