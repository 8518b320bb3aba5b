package exchange

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/condex/internal/domain"
)

// Fees stay commingled in the pool: a 40 X fee lifts every share's
// redemption value immediately. LP1 holds 100 of 400 shares and redeems
// (100/400) * (100 + 300 + 40) = 110 X.
func TestFeesAccrueToSharesImmediately(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 1000)

	require.Equal(uint64(100), h.addLiquidity("lp1", "X", 100))
	require.Equal(uint64(300), h.addLiquidity("lp2", "X", 300))
	require.Equal(uint64(400), h.TotalShares())

	// A 400 X round trip at 10% leaves a 40 X fee in the pool.
	h.deposit("trader", "X", 400)
	p, err := h.Propose(h.ctx, "trader",
		[]domain.Item{domain.PlainItem("X", 400)},
		[]domain.Item{domain.PlainItem("X", 400)},
		always(),
	)
	require.NoError(err)
	done, err := h.Execute(p.ID, "trader")
	require.NoError(err)
	require.Equal(domain.Amount(40), done.Fees["X"])
	require.Equal(uint64(440), h.PoolBalance("X"))
	require.Equal(uint64(360), h.Balance("trader", "X"))
	h.requireBalanced()

	out, err := h.RemoveLiquidity(h.ctx, "lp1", 100, "X")
	require.NoError(err)
	require.Equal(uint64(110), out)
	require.Zero(h.Position("lp1").Shares)
	require.Equal(uint64(300), h.TotalShares())
	require.Equal(uint64(330), h.PoolBalance("X"))

	out, err = h.RemoveLiquidity(h.ctx, "lp2", 300, "X")
	require.NoError(err)
	require.Equal(uint64(330), out)
	require.Zero(h.TotalShares())
	require.Zero(h.PoolBalance("X"))
	h.requireBalanced()
}

func TestAddLiquidityRejections(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)

	_, err := h.AddLiquidity(h.ctx, "lp", "X", 0)
	require.ErrorIs(err, domain.ErrZeroAmount)

	h.addLiquidity("lp", "X", 1000)
	h.addLiquidity("lp", "Y", 1000)
	// Burning 1500 shares against Y leaves 500 shares over 1000 X, so one
	// unit of X is worth half a share and rounds down to zero.
	_, err = h.RemoveLiquidity(h.ctx, "lp", 1500, "Y")
	require.NoError(err)
	require.Equal(uint64(500), h.TotalShares())

	_, err = h.AddLiquidity(h.ctx, "tiny", "X", 1)
	require.ErrorIs(err, domain.ErrZeroShares)
	require.Equal(domain.KindValidation, domain.KindOf(err))
	in, _ := h.custody.Totals("X")
	require.Equal(uint64(1000), in, "custody untouched by rejected deposit")
	h.requireBalanced()
}

func TestAddLiquidityFirstDepositOfAsset(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)

	require.Equal(uint64(50), h.addLiquidity("lp1", "X", 50))
	// No Y in the pool yet: shares equal the amount.
	require.Equal(uint64(7), h.addLiquidity("lp2", "Y", 7))
	require.Equal(uint64(57), h.TotalShares())
	// Y pool is 7 against 57 shares.
	require.Equal(uint64(57), h.addLiquidity("lp3", "Y", 7))
}

func TestRemoveLiquidityRejections(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)
	h.addLiquidity("lp", "X", 100)

	_, err := h.RemoveLiquidity(h.ctx, "lp", 101, "X")
	require.ErrorIs(err, domain.ErrInsufficientShares)
	require.Equal(domain.KindResource, domain.KindOf(err))

	_, err = h.RemoveLiquidity(h.ctx, "stranger", 1, "X")
	require.ErrorIs(err, domain.ErrInsufficientShares)

	_, err = h.RemoveLiquidity(h.ctx, "lp", 0, "X")
	require.ErrorIs(err, domain.ErrZeroAmount)

	_, err = h.RemoveLiquidity(h.ctx, "lp", 10, "Y")
	require.ErrorIs(err, domain.ErrZeroAmount, "nothing of Y to redeem")

	require.Equal(uint64(100), h.Position("lp").Shares)
	require.Equal(uint64(100), h.PoolBalance("X"))
	h.requireBalanced()
}

func TestLiquidityMathDoesNotOverflow(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, 0)

	h.addLiquidity("lp1", "X", math.MaxUint64/2)
	// amount * totalShares exceeds 64 bits; the 256-bit path keeps it exact.
	shares := h.addLiquidity("lp2", "X", math.MaxUint64/4)
	require.Equal(uint64(math.MaxUint64/4), shares)

	out, err := h.RemoveLiquidity(h.ctx, "lp2", shares, "X")
	require.NoError(err)
	require.Equal(uint64(math.MaxUint64/4), out)
	h.requireBalanced()
}
