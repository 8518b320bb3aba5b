package exchange

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/custody"
	"github.com/alanyoungcy/condex/internal/domain"
)

func TestPuzzleSolvedOnce(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.addLiquidity("lp", "Y", 10)
	h.deposit("alice", "X", 5)

	p, err := h.Propose(h.ctx, "alice",
		[]domain.Item{domain.PlainItem("X", 5)},
		[]domain.Item{domain.PlainItem("Y", 5)},
		domain.Condition{Kind: domain.ConditionPuzzleSolved, Challenge: common.HexToHash("0xdead")},
	)
	require.NoError(err)

	want := ChallengeFor(p.ID, testSeed)
	require.Equal(want, p.Condition.Challenge, "supplied challenge is replaced")
	pz, err := h.Puzzle(p.ID)
	require.NoError(err)
	require.Equal(want, pz.Challenge)
	require.False(pz.Solved)

	_, err = h.Execute(p.ID, "alice")
	require.ErrorIs(err, domain.ErrConditionNotMet)

	_, err = h.Solve(p.ID, "bob", common.HexToHash("0x01"))
	require.ErrorIs(err, domain.ErrWrongSolution)

	solved, err := h.Solve(p.ID, "bob", want)
	require.NoError(err)
	require.True(solved.Solved)
	require.Equal(domain.Account("bob"), solved.Solver)
	require.Equal(want, solved.Solution)

	_, err = h.Solve(p.ID, "carol", want)
	require.ErrorIs(err, domain.ErrAlreadySolved)
	require.Equal(domain.KindState, domain.KindOf(err))
	pz, err = h.Puzzle(p.ID)
	require.NoError(err)
	require.Equal(domain.Account("bob"), pz.Solver)

	met, err := h.IsMet(p.ID)
	require.NoError(err)
	require.True(met)
	_, err = h.Execute(p.ID, "alice")
	require.NoError(err)
	require.Equal(uint64(5), h.Balance("alice", "Y"))
	h.requireBalanced()

	_, err = h.Solve(p.ID, "carol", want)
	require.ErrorIs(err, domain.ErrAlreadySolved, "settled proposals keep rejecting with already solved")
}

func TestSolveRequiresPuzzle(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	p := proposeWith(t, h, always())

	_, err := h.Solve(p.ID, "bob", common.Hash{})
	require.ErrorIs(err, domain.ErrNoPuzzle)
	_, err = h.Puzzle(p.ID)
	require.ErrorIs(err, domain.ErrNoPuzzle)

	_, err = h.Solve(999, "bob", common.Hash{})
	require.ErrorIs(err, domain.ErrProposalNotFound)
	_, err = h.Puzzle(999)
	require.ErrorIs(err, domain.ErrProposalNotFound)
}

func TestChallengeIsBoundToProposalAndSeed(t *testing.T) {
	require := require.New(t)

	a := ChallengeFor(1, []byte("seed"))
	require.Equal(a, ChallengeFor(1, []byte("seed")))
	require.NotEqual(a, ChallengeFor(2, []byte("seed")))
	require.NotEqual(a, ChallengeFor(1, []byte("other")))
}

type flakySeed struct{ fail bool }

func (s *flakySeed) Seed(ctx context.Context) ([]byte, error) {
	if s.fail {
		return failingSeed{}.Seed(ctx)
	}
	return testSeed, nil
}

func TestSeedFailureAbortsProposal(t *testing.T) {
	require := require.New(t)
	seeds := &flakySeed{fail: true}
	eng, err := New(Config{Custody: custody.NewJournal(nil), Seeds: seeds, Params: StaticParams{}})
	require.NoError(err)

	ctx := t.Context()
	require.NoError(eng.Deposit(ctx, "alice", "X", 5))
	propose := func() (domain.Proposal, error) {
		return eng.Propose(ctx, "alice",
			[]domain.Item{domain.PlainItem("X", 5)},
			[]domain.Item{domain.PlainItem("Y", 5)},
			domain.PuzzleSolved(),
		)
	}

	_, err = propose()
	require.Error(err)
	require.Equal(uint64(5), eng.Balance("alice", "X"))
	require.Zero(eng.OpenCount())

	seeds.fail = false
	p, err := propose()
	require.NoError(err)
	require.Equal(uint64(1), p.ID, "failed draw did not consume an id")
	require.Equal(ChallengeFor(1, testSeed), p.Condition.Challenge)
}

type rejectAll struct{}

func (rejectAll) Verify(common.Hash, common.Hash) bool { return false }

func TestCustomVerifier(t *testing.T) {
	require := require.New(t)
	eng, err := New(Config{
		Custody:  custody.NewJournal(nil),
		Seeds:    fixedSeed(testSeed),
		Params:   StaticParams{},
		Verifier: rejectAll{},
	})
	require.NoError(err)

	ctx := t.Context()
	require.NoError(eng.Deposit(ctx, "alice", "X", 1))
	p, err := eng.Propose(ctx, "alice",
		[]domain.Item{domain.PlainItem("X", 1)},
		[]domain.Item{domain.PlainItem("Y", 1)},
		domain.PuzzleSolved(),
	)
	require.NoError(err)
	_, err = eng.Solve(p.ID, "bob", ChallengeFor(p.ID, testSeed))
	require.ErrorIs(err, domain.ErrWrongSolution)
}
