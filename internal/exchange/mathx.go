package exchange

import (
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/condex/internal/domain"
)

const bpsDenominator = 10_000

// mulDiv returns floor(a*b/d) computed in 256 bits, failing if the result
// does not fit an Amount.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, domain.ErrOverflow
	}
	res, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d),
	)
	if overflow || !res.IsUint64() {
		return 0, domain.ErrOverflow
	}
	return res.Uint64(), nil
}

// feeFor returns amount*bps/10000 rounded down.
func feeFor(amount domain.Amount, bps uint32) (domain.Amount, error) {
	return mulDiv(amount, uint64(bps), bpsDenominator)
}

func addAmount(a, b domain.Amount) (domain.Amount, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrOverflow
	}
	return sum, nil
}

// tally accumulates per-asset totals with overflow detection.
type tally map[domain.AssetType]domain.Amount

func (t tally) add(asset domain.AssetType, amount domain.Amount) error {
	sum, err := addAmount(t[asset], amount)
	if err != nil {
		return err
	}
	t[asset] = sum
	return nil
}
