package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/domain"
)

func TestProposeValidation(t *testing.T) {
	h := newHarness(t, 0)
	h.params.AllowedAssets = []domain.AssetType{"X", "Y"}
	h.deposit("alice", "X", 100)

	x := []domain.Item{domain.PlainItem("X", 10)}
	y := []domain.Item{domain.PlainItem("Y", 10)}

	tests := []struct {
		name    string
		inputs  []domain.Item
		outputs []domain.Item
		cond    domain.Condition
		want    error
	}{
		{"no inputs", nil, y, always(), domain.ErrEmptyItems},
		{"no outputs", x, nil, always(), domain.ErrEmptyItems},
		{"zero input", []domain.Item{domain.PlainItem("X", 0)}, y, always(), domain.ErrZeroAmount},
		{"zero output", x, []domain.Item{domain.PlainItem("Y", 0)}, always(), domain.ErrZeroAmount},
		{"unknown asset", []domain.Item{domain.PlainItem("Q", 1)}, y, always(), domain.ErrUnknownAsset},
		{"bad item kind", []domain.Item{{Kind: "weird"}}, y, always(), domain.ErrInvalidItem},
		{"bundle item with amount", []domain.Item{{Kind: domain.ItemBundle, BundleID: 1, Amount: 3}}, y, always(), domain.ErrInvalidItem},
		{"missing bundle", []domain.Item{domain.BundleItem(42)}, y, always(), domain.ErrBundleNotFound},
		{"bad condition", x, y, domain.Condition{Kind: "lunar_phase"}, domain.ErrInvalidCondition},
		{"time without timestamp", x, y, domain.Condition{Kind: domain.ConditionTimeAfter}, domain.ErrInvalidCondition},
		{"price on unknown asset", x, y, domain.PriceAtLeast("Q", 1), domain.ErrUnknownAsset},
		{"insufficient balance", []domain.Item{domain.PlainItem("X", 101)}, y, always(), domain.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Propose(h.ctx, "alice", tt.inputs, tt.outputs, tt.cond)
			require.ErrorIs(t, err, tt.want)
		})
	}
	require.Equal(t, uint64(100), h.Balance("alice", "X"))
	require.Zero(t, h.OpenCount())
	h.requireBalanced()
}

func TestProposeEscrowIsAllOrNothing(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.deposit("alice", "X", 50)
	h.deposit("alice", "A", 3)
	b, err := h.CreateBundle("alice", []domain.Holding{{Asset: "A", Amount: 3}})
	require.NoError(err)

	// The bundle escrow would succeed but the second plain debit cannot.
	_, err = h.Propose(h.ctx, "alice",
		[]domain.Item{domain.BundleItem(b.ID), domain.PlainItem("X", 30), domain.PlainItem("X", 30)},
		[]domain.Item{domain.PlainItem("Y", 1)},
		always(),
	)
	require.ErrorIs(err, domain.ErrInsufficientBalance)
	require.Equal(uint64(50), h.Balance("alice", "X"))
	got, err := h.Bundle(b.ID)
	require.NoError(err)
	require.Equal(domain.Account("alice"), got.Owner)
	require.False(got.Locked())

	_, err = h.Propose(h.ctx, "alice",
		[]domain.Item{domain.BundleItem(b.ID), domain.BundleItem(b.ID)},
		[]domain.Item{domain.PlainItem("Y", 1)},
		always(),
	)
	require.ErrorIs(err, domain.ErrDuplicateBundle)

	_, err = h.Propose(h.ctx, "bob",
		[]domain.Item{domain.BundleItem(b.ID)},
		[]domain.Item{domain.PlainItem("Y", 1)},
		always(),
	)
	require.ErrorIs(err, domain.ErrNotOwner)

	_, err = h.Propose(h.ctx, "alice",
		[]domain.Item{domain.PlainItem("X", 1)},
		[]domain.Item{domain.BundleItem(b.ID)},
		always(),
	)
	require.ErrorIs(err, domain.ErrInvalidItem, "output bundles must be pool inventory")
	require.Zero(h.OpenCount())
	h.requireBalanced()
}

func TestProposeThenCancelRestoresInputs(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.deposit("alice", "X", 100)
	h.deposit("alice", "A", 7)
	b, err := h.CreateBundle("alice", []domain.Holding{{Asset: "A", Amount: 7}})
	require.NoError(err)

	inputs := []domain.Item{domain.PlainItem("X", 60), domain.BundleItem(b.ID), domain.PlainItem("X", 15)}
	p, err := h.Propose(h.ctx, "alice", inputs, []domain.Item{domain.PlainItem("Y", 1)}, always())
	require.NoError(err)
	require.Equal(uint64(1), p.ID)
	require.Equal(domain.ProposalOpen, p.Status)
	require.Equal(inputs, p.Inputs)
	require.Equal(uint64(25), h.Balance("alice", "X"))
	h.requireBalanced()

	err = h.CancelAs(p.ID, "bob")
	require.ErrorIs(err, domain.ErrNotProposer)
	require.Equal(domain.KindAuthorization, domain.KindOf(err))

	cancelled, err := h.Cancel(p.ID, "alice")
	require.NoError(err)
	require.Equal(domain.ProposalCancelled, cancelled.Status)
	require.NotNil(cancelled.SettledAt)
	require.Equal(inputs, cancelled.Inputs)

	require.Equal(uint64(100), h.Balance("alice", "X"))
	got, err := h.Bundle(b.ID)
	require.NoError(err)
	require.Equal(domain.Account("alice"), got.Owner)
	require.False(got.Locked())
	require.Equal([]domain.Holding{{Asset: "A", Amount: 7}}, got.Holdings)
	require.Zero(h.OpenCount())
	h.requireBalanced()

	_, err = h.Cancel(p.ID, "alice")
	require.ErrorIs(err, domain.ErrAlreadySettled)
	_, err = h.Execute(p.ID, "alice")
	require.ErrorIs(err, domain.ErrAlreadySettled)
	require.Equal(uint64(100), h.Balance("alice", "X"))
	h.requireBalanced()
}

func TestListOpenProposalsUsesIndexOrder(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.deposit("alice", "X", 100)

	for i := 0; i < 5; i++ {
		_, err := h.Propose(h.ctx, "alice",
			[]domain.Item{domain.PlainItem("X", 1)},
			[]domain.Item{domain.PlainItem("Y", 1)},
			domain.CounterAtLeast(1000),
		)
		require.NoError(err)
	}
	_, err := h.Cancel(2, "alice")
	require.NoError(err)

	ids := func(ps []domain.Proposal) []uint64 {
		var out []uint64
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}
	require.Equal([]uint64{1, 3, 4, 5}, ids(h.ListOpenProposals(0, 0)))
	require.Equal([]uint64{1, 3}, ids(h.ListOpenProposals(0, 2)))
	require.Equal([]uint64{4, 5}, ids(h.ListOpenProposals(3, 10)))
	require.Empty(h.ListOpenProposals(5, 10))
	require.Equal(4, h.OpenCount())

	_, err = h.Proposal(99)
	require.ErrorIs(err, domain.ErrProposalNotFound)
}

// CancelAs discards the proposal and returns only the error.
func (h *harness) CancelAs(id uint64, caller domain.Account) error {
	_, err := h.Cancel(id, caller)
	return err
}
