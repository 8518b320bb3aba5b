package mem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/domain"
)

func TestEventStoreOrdersAndDeduplicates(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := NewEventStore()

	for _, e := range []domain.Event{
		{ID: "b", Seq: 2, Type: domain.EventWithdrawn},
		{ID: "a", Seq: 1, Type: domain.EventDeposited},
		{ID: "a", Seq: 1, Type: domain.EventDeposited},
		{ID: "c", Seq: 3, Type: domain.EventDeposited},
	} {
		require.NoError(s.Append(ctx, e))
	}

	last, err := s.LastSeq(ctx)
	require.NoError(err)
	require.EqualValues(3, last)

	got, err := s.ListSince(ctx, 0, 2)
	require.NoError(err)
	require.Len(got, 2)
	require.Equal("a", got[0].ID)
	require.Equal("b", got[1].ID)

	got, err = s.ListSince(ctx, 2, 10)
	require.NoError(err)
	require.Len(got, 1)
	require.Equal("c", got[0].ID)
}

func TestProposalStoreSettledAndArchived(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := NewProposalStore()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	settled := func(id uint64, at time.Time) domain.Proposal {
		return domain.Proposal{ID: id, Status: domain.ProposalExecuted, CreatedAt: base, SettledAt: &at}
	}
	require.NoError(s.Upsert(ctx, settled(1, base.Add(2*time.Hour))))
	require.NoError(s.Upsert(ctx, settled(2, base.Add(time.Hour))))
	require.NoError(s.Upsert(ctx, settled(3, base.Add(5*time.Hour))))
	require.NoError(s.Upsert(ctx, domain.Proposal{ID: 4, Status: domain.ProposalOpen, CreatedAt: base}))

	got, err := s.ListSettledBefore(ctx, base.Add(3*time.Hour), 0)
	require.NoError(err)
	require.Len(got, 2)
	require.EqualValues(2, got[0].ID)
	require.EqualValues(1, got[1].ID)

	require.NoError(s.MarkArchived(ctx, []uint64{2}))
	got, err = s.ListSettledBefore(ctx, base.Add(3*time.Hour), 0)
	require.NoError(err)
	require.Len(got, 1)
	require.EqualValues(1, got[0].ID)

	open, err := s.ListByStatus(ctx, domain.ProposalOpen, domain.ListOpts{})
	require.NoError(err)
	require.Len(open, 1)

	_, err = s.GetByID(ctx, 99)
	require.ErrorIs(err, domain.ErrProposalNotFound)
}

func TestSnapshotStoreLatest(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := NewSnapshotStore()

	_, err := s.Latest(ctx)
	require.ErrorIs(err, domain.ErrNotFound)

	require.NoError(s.Save(ctx, domain.Snapshot{Seq: 4}))
	require.NoError(s.Save(ctx, domain.Snapshot{Seq: 9}))
	snap, err := s.Latest(ctx)
	require.NoError(err)
	require.EqualValues(9, snap.Seq)
	require.Equal(2, s.Saves())
}

func TestAuditStorePaging(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := NewAuditStore()

	for _, ev := range []string{"one", "two", "three"} {
		require.NoError(s.Log(ctx, ev, nil))
	}
	got, err := s.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(err)
	require.Len(got, 2)
	require.Equal("three", got[0].Event)
	require.Equal("two", got[1].Event)

	got, err = s.List(ctx, domain.ListOpts{Offset: 5})
	require.NoError(err)
	require.Empty(got)
}
