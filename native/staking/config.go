package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// Config captures the initial parameter set of a staking pool.
type Config struct {
	Fee                      *uint256.Int
	WithdrawalLockDuration   uint64
	WithdrawalUnlockDuration uint64
	TotalSupplyFactor        *uint256.Int
	LiquidityRewardAddress   crypto.Address
	Sigmoid                  SigmoidParams
}

// DefaultSigmoid returns the reference curve: a=7.5%, b=0, c=1e13.
func DefaultSigmoid() SigmoidParams {
	var p SigmoidParams
	p.A.Set(maxSupplyBasedRate)
	p.C.SetUint64(10_000_000_000_000)
	return p
}

// DefaultConfig returns a 3% forced withdrawal fee, a 12 hour lock followed
// by a 12 hour window, and a supply factor of 100%. The reward address must
// still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Fee:                      mustUint("30000000000000000"),
		WithdrawalLockDuration:   12 * 60 * 60,
		WithdrawalUnlockDuration: 12 * 60 * 60,
		TotalSupplyFactor:        new(uint256.Int).Set(One),
		Sigmoid:                  DefaultSigmoid(),
	}
}

// Validate applies the parameter bounds enforced by the setters.
func (c Config) Validate() error {
	if err := validateFraction(ParamFee, c.Fee); err != nil {
		return err
	}
	if err := validateLockDuration(c.WithdrawalLockDuration); err != nil {
		return err
	}
	if err := validateUnlockDuration(c.WithdrawalUnlockDuration); err != nil {
		return err
	}
	if err := validateFraction(ParamTotalSupplyFactor, c.TotalSupplyFactor); err != nil {
		return err
	}
	if err := validateRewardAddress(c.LiquidityRewardAddress); err != nil {
		return err
	}
	if err := c.Sigmoid.Validate(); err != nil {
		return fmt.Errorf("sigmoid: %w", err)
	}
	return nil
}
