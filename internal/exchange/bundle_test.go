package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/domain"
)

func TestCreateAndDissolveBundle(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.deposit("alice", "A", 10)
	h.deposit("alice", "B", 5)

	b, err := h.CreateBundle("alice", []domain.Holding{
		{Asset: "A", Amount: 6},
		{Asset: "B", Amount: 5},
		{Asset: "A", Amount: 4},
	})
	require.NoError(err)
	require.Equal(uint64(1), b.ID)
	require.Equal(domain.Account("alice"), b.Owner)
	require.False(b.Locked())
	require.Zero(h.Balance("alice", "A"))
	require.Zero(h.Balance("alice", "B"))
	h.requireBalanced()

	got, err := h.Bundle(b.ID)
	require.NoError(err)
	require.Equal(b, got)

	err = h.DissolveBundle(b.ID, "mallory")
	require.ErrorIs(err, domain.ErrNotOwner)
	require.Equal(domain.KindAuthorization, domain.KindOf(err))

	require.NoError(h.DissolveBundle(b.ID, "alice"))
	require.Equal(uint64(10), h.Balance("alice", "A"))
	require.Equal(uint64(5), h.Balance("alice", "B"))
	_, err = h.Bundle(b.ID)
	require.ErrorIs(err, domain.ErrBundleNotFound)
	require.Equal(domain.KindNotFound, domain.KindOf(err))
	h.requireBalanced()
}

func TestCreateBundleIsAllOrNothing(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.deposit("alice", "A", 10)
	h.deposit("alice", "B", 5)

	_, err := h.CreateBundle("alice", []domain.Holding{
		{Asset: "A", Amount: 10},
		{Asset: "B", Amount: 6},
	})
	require.ErrorIs(err, domain.ErrInsufficientBalance)
	require.Equal(uint64(10), h.Balance("alice", "A"))
	require.Equal(uint64(5), h.Balance("alice", "B"))

	_, err = h.CreateBundle("alice", []domain.Holding{
		{Asset: "A", Amount: 6},
		{Asset: "A", Amount: 6},
	})
	require.ErrorIs(err, domain.ErrInsufficientBalance)
	require.Equal(uint64(10), h.Balance("alice", "A"))

	_, err = h.CreateBundle("alice", nil)
	require.ErrorIs(err, domain.ErrEmptyItems)

	_, err = h.CreateBundle("alice", []domain.Holding{{Asset: "A", Amount: 0}})
	require.ErrorIs(err, domain.ErrZeroAmount)

	_, err = h.Bundle(1)
	require.ErrorIs(err, domain.ErrBundleNotFound)
	h.requireBalanced()
}

func TestLockedBundleCannotBeDissolved(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.deposit("alice", "A", 10)
	b, err := h.CreateBundle("alice", []domain.Holding{{Asset: "A", Amount: 10}})
	require.NoError(err)

	p, err := h.Propose(h.ctx, "alice",
		[]domain.Item{domain.BundleItem(b.ID)},
		[]domain.Item{domain.PlainItem("Z", 1)},
		domain.CounterAtLeast(99),
	)
	require.NoError(err)

	escrowed, err := h.Bundle(b.ID)
	require.NoError(err)
	require.Equal(domain.PoolAccount, escrowed.Owner)
	require.Equal(p.ID, escrowed.LockedBy)

	require.ErrorIs(h.DissolveBundle(b.ID, "alice"), domain.ErrNotOwner)
	err = h.DissolveBundle(b.ID, domain.PoolAccount)
	require.ErrorIs(err, domain.ErrInvalidAccount, "nobody dissolves as the pool")
	require.Equal(p.ID, h.mustBundle(b.ID).LockedBy)
	h.requireBalanced()
}
