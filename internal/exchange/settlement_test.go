package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/domain"
)

// Input {X:100}, output {Y:50}, TimeAfter(T), 10% fee.
func TestExecuteTimeGatedSwap(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1000)
	h.addLiquidity("lp", "Y", 1000)
	h.deposit("alice", "X", 100)

	deadline := h.clock.Now().Add(24 * time.Hour)
	p, err := h.Propose(h.ctx, "alice",
		[]domain.Item{domain.PlainItem("X", 100)},
		[]domain.Item{domain.PlainItem("Y", 50)},
		domain.TimeAfter(deadline),
	)
	require.NoError(err)
	h.requireBalanced()

	_, err = h.Execute(p.ID, "keeper")
	require.ErrorIs(err, domain.ErrConditionNotMet)
	require.Equal(domain.KindState, domain.KindOf(err))
	require.Zero(h.PoolBalance("X"))

	h.clock.Advance(24 * time.Hour)
	done, err := h.Execute(p.ID, "keeper")
	require.NoError(err)
	require.Equal(domain.ProposalExecuted, done.Status)
	require.Equal(domain.Account("keeper"), done.SettledBy)
	require.Equal(map[domain.AssetType]domain.Amount{"Y": 5}, done.Fees)

	require.Equal(uint64(45), h.Balance("alice", "Y"))
	require.Equal(uint64(100), h.PoolBalance("X"))
	require.Equal(uint64(955), h.PoolBalance("Y"))
	require.Equal(uint64(1), h.ExecutedCount())
	require.Zero(h.OpenCount())
	h.requireBalanced()
}

func TestExecuteInsufficientPoolLiquidityKeepsProposalOpen(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.addLiquidity("lp", "Y", 30)
	h.deposit("alice", "X", 10)

	p, err := h.Propose(h.ctx, "alice",
		[]domain.Item{domain.PlainItem("X", 10)},
		[]domain.Item{domain.PlainItem("Y", 20), domain.PlainItem("Y", 20)},
		always(),
	)
	require.NoError(err)

	before := h.Snapshot()
	_, err = h.Execute(p.ID, "keeper")
	require.ErrorIs(err, domain.ErrInsufficientPoolLiquidity)
	require.Equal(domain.KindResource, domain.KindOf(err))
	require.Equal(before, h.Snapshot())

	got, err := h.Proposal(p.ID)
	require.NoError(err)
	require.Equal(domain.ProposalOpen, got.Status)
	require.Zero(h.ExecutedCount())

	// Retry once the pool is replenished.
	h.addLiquidity("lp", "Y", 10)
	_, err = h.Execute(p.ID, "keeper")
	require.NoError(err)
	require.Equal(uint64(40), h.Balance("alice", "Y"))
	require.Zero(h.PoolBalance("Y"))
	h.requireBalanced()
}

func TestExecuteTwiceFailsWithoutSecondPayout(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.addLiquidity("lp", "Y", 100)
	h.deposit("alice", "X", 10)

	p, err := h.Propose(h.ctx, "alice",
		[]domain.Item{domain.PlainItem("X", 10)},
		[]domain.Item{domain.PlainItem("Y", 10)},
		always(),
	)
	require.NoError(err)

	_, err = h.Execute(p.ID, "keeper")
	require.NoError(err)
	_, err = h.Execute(p.ID, "keeper")
	require.ErrorIs(err, domain.ErrAlreadySettled)
	_, err = h.Cancel(p.ID, "alice")
	require.ErrorIs(err, domain.ErrAlreadySettled)

	require.Equal(uint64(10), h.Balance("alice", "Y"))
	require.Equal(uint64(1), h.ExecutedCount())

	_, err = h.Execute(77, "keeper")
	require.ErrorIs(err, domain.ErrProposalNotFound)
	h.requireBalanced()
}

// A bundle {A:10, B:5} that became pool inventory is reserved as another
// proposal's output, cannot be dissolved meanwhile, and reaches the proposer
// intact.
func TestBundleOutputTransfersIntact(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 500)
	h.addLiquidity("lp", "Z", 100)

	h.deposit("alice", "A", 10)
	h.deposit("alice", "B", 5)
	b, err := h.CreateBundle("alice", []domain.Holding{{Asset: "A", Amount: 10}, {Asset: "B", Amount: 5}})
	require.NoError(err)

	sell, err := h.Propose(h.ctx, "alice",
		[]domain.Item{domain.BundleItem(b.ID)},
		[]domain.Item{domain.PlainItem("Z", 20)},
		always(),
	)
	require.NoError(err)
	_, err = h.Execute(sell.ID, "alice")
	require.NoError(err)
	require.Equal(uint64(19), h.Balance("alice", "Z"))

	inventory, err := h.Bundle(b.ID)
	require.NoError(err)
	require.Equal(domain.PoolAccount, inventory.Owner)
	require.False(inventory.Locked())
	h.requireBalanced()

	h.deposit("bob", "X", 20)
	buy, err := h.Propose(h.ctx, "bob",
		[]domain.Item{domain.PlainItem("X", 20)},
		[]domain.Item{domain.BundleItem(b.ID)},
		domain.TimeAfter(h.clock.Now().Add(time.Minute)),
	)
	require.NoError(err)

	require.ErrorIs(h.DissolveBundle(b.ID, "bob"), domain.ErrNotOwner)

	h.deposit("carol", "X", 1)
	_, err = h.Propose(h.ctx, "carol",
		[]domain.Item{domain.PlainItem("X", 1)},
		[]domain.Item{domain.BundleItem(b.ID)},
		always(),
	)
	require.ErrorIs(err, domain.ErrBundleLocked, "already reserved by another proposal")

	h.clock.Advance(time.Minute)
	done, err := h.Execute(buy.ID, "bob")
	require.NoError(err)
	require.Empty(done.Fees)

	got, err := h.Bundle(b.ID)
	require.NoError(err)
	require.Equal(domain.Account("bob"), got.Owner)
	require.False(got.Locked())
	require.Equal([]domain.Holding{{Asset: "A", Amount: 10}, {Asset: "B", Amount: 5}}, got.Holdings)
	require.Equal(uint64(20), h.PoolBalance("X"))
	h.requireBalanced()

	require.NoError(h.DissolveBundle(b.ID, "bob"))
	require.Equal(uint64(10), h.Balance("bob", "A"))
	require.Equal(uint64(5), h.Balance("bob", "B"))
	h.requireBalanced()
}

func TestPoolSentinelCannotAct(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.addLiquidity("lp", "Z", 100)

	h.deposit("alice", "A", 10)
	b, err := h.CreateBundle("alice", []domain.Holding{{Asset: "A", Amount: 10}})
	require.NoError(err)
	sell, err := h.Propose(h.ctx, "alice",
		[]domain.Item{domain.BundleItem(b.ID)},
		[]domain.Item{domain.PlainItem("Z", 10)},
		always(),
	)
	require.NoError(err)

	h.deposit("bob", "W", 5)
	open, err := h.Propose(h.ctx, "bob",
		[]domain.Item{domain.PlainItem("W", 5)},
		[]domain.Item{domain.PlainItem("Z", 5)},
		domain.TimeAfter(h.clock.Now().Add(time.Hour)),
	)
	require.NoError(err)

	_, err = h.Execute(sell.ID, domain.PoolAccount)
	require.ErrorIs(err, domain.ErrInvalidAccount)
	_, err = h.Execute(sell.ID, "alice")
	require.NoError(err)

	inventory, err := h.Bundle(b.ID)
	require.NoError(err)
	require.Equal(domain.PoolAccount, inventory.Owner)
	require.False(inventory.Locked())

	require.ErrorIs(h.DissolveBundle(b.ID, domain.PoolAccount), domain.ErrInvalidAccount)
	require.Zero(h.PoolBalance("A"))
	_, err = h.Cancel(open.ID, domain.PoolAccount)
	require.ErrorIs(err, domain.ErrInvalidAccount)
	require.Equal(1, h.OpenCount())
	h.requireBalanced()
}

func TestCancelReleasesReservedOutputBundle(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.addLiquidity("lp", "Z", 10)
	h.deposit("alice", "A", 1)
	b, err := h.CreateBundle("alice", []domain.Holding{{Asset: "A", Amount: 1}})
	require.NoError(err)
	sell, err := h.Propose(h.ctx, "alice", []domain.Item{domain.BundleItem(b.ID)}, []domain.Item{domain.PlainItem("Z", 1)}, always())
	require.NoError(err)
	_, err = h.Execute(sell.ID, "alice")
	require.NoError(err)

	h.deposit("bob", "X", 1)
	buy, err := h.Propose(h.ctx, "bob", []domain.Item{domain.PlainItem("X", 1)}, []domain.Item{domain.BundleItem(b.ID)}, domain.CounterAtLeast(50))
	require.NoError(err)
	_, err = h.Cancel(buy.ID, "bob")
	require.NoError(err)

	got, err := h.Bundle(b.ID)
	require.NoError(err)
	require.Equal(domain.PoolAccount, got.Owner)
	require.False(got.Locked())
	require.Equal(uint64(1), h.Balance("bob", "X"))
	h.requireBalanced()
}
