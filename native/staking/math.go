package staking

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

const (
	secondsPerYear uint64 = 365 * 24 * 60 * 60
	// maxSqrtIterations bounds Newton's method for any 256-bit input.
	maxSqrtIterations = 200
)

var (
	errDivisionByZero     = errors.New("staking: division by zero")
	errArithmeticOverflow = errors.New("staking: arithmetic overflow")
)

var (
	// One is the fixed-point scale; 100% is expressed as One.
	One = mustUint("1000000000000000000")
	// MaxEmissionRate is the annual emission ceiling (15%).
	MaxEmissionRate = mustUint("150000000000000000")
	// maxSupplyBasedRate caps both the personal and the supply based rate
	// components at half of the emission ceiling.
	maxSupplyBasedRate = new(uint256.Int).Rsh(MaxEmissionRate, 1)
	yearScale          = new(uint256.Int).Mul(One, uint256.NewInt(secondsPerYear))
)

func mustUint(value string) *uint256.Int {
	v, err := uint256.FromDecimal(value)
	if err != nil {
		panic("invalid uint256 constant")
	}
	return v
}

// MulDiv returns floor(a*b/c) using a 512-bit intermediate product.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c == nil || c.IsZero() {
		return nil, errDivisionByZero
	}
	if a == nil || b == nil || a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, c)
	if overflow {
		return nil, errArithmeticOverflow
	}
	return z, nil
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *uint256.Int) *uint256.Int {
	z, _ := sqrtIter(x)
	return z
}

// sqrtIter runs Newton's method seeded at x/2+1. The candidate decreases
// monotonically and the loop stops at the first non-decreasing step. The
// iteration count is returned for tests.
func sqrtIter(x *uint256.Int) (*uint256.Int, int) {
	if x == nil || x.IsZero() {
		return new(uint256.Int), 0
	}
	if x.LtUint64(4) {
		return uint256.NewInt(1), 0
	}
	z := new(uint256.Int).Set(x)
	y := new(uint256.Int).Rsh(x, 1)
	y.AddUint64(y, 1)
	iterations := 0
	quotient := new(uint256.Int)
	for y.Lt(z) {
		z.Set(y)
		quotient.Div(x, y)
		y.Add(quotient, y)
		y.Rsh(y, 1)
		iterations++
		if iterations > maxSqrtIterations {
			break
		}
	}
	return z, iterations
}

// SubSigned computes x-b for an unsigned x and a signed b. It reports
// negative=true (and a zero result) when the difference is below zero.
func SubSigned(x uint64, b int64) (result *uint256.Int, negative bool) {
	diff := new(big.Int).SetUint64(x)
	diff.Sub(diff, big.NewInt(b))
	if diff.Sign() < 0 {
		return new(uint256.Int), true
	}
	out, _ := uint256.FromBig(diff)
	return out, false
}

// applyPercentage returns amount*pct/One.
func applyPercentage(amount, pct *uint256.Int) (*uint256.Int, error) {
	return MulDiv(amount, pct, One)
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func minUint(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}
