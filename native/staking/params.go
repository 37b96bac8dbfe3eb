package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

const (
	// MaxWithdrawalLockDuration bounds the lock phase of a timed withdrawal.
	MaxWithdrawalLockDuration uint64 = 30 * 24 * 60 * 60
	// MinWithdrawalUnlockDuration bounds the execution window from below.
	MinWithdrawalUnlockDuration uint64 = 60 * 60
)

// Parameter names used in events and by the administrative surface.
const (
	ParamFee                      = "fee"
	ParamWithdrawalLockDuration   = "withdrawalLockDuration"
	ParamWithdrawalUnlockDuration = "withdrawalUnlockDuration"
	ParamTotalSupplyFactor        = "totalSupplyFactor"
	ParamLiquidityRewardAddress   = "liquidityRewardAddress"
	ParamSigmoid                  = "sigmoidParameters"
)

// Parameters groups every owner-tunable value of the pool.
type Parameters struct {
	Fee                      Delayed[uint256.Int]
	WithdrawalLockDuration   Delayed[uint64]
	WithdrawalUnlockDuration Delayed[uint64]
	TotalSupplyFactor        Delayed[uint256.Int]
	LiquidityRewardAddress   Delayed[crypto.Address]
	Sigmoid                  *Sigmoid
}

// EffectiveParameters is a resolved view of Parameters at a point in time.
type EffectiveParameters struct {
	Fee                      *uint256.Int
	WithdrawalLockDuration   uint64
	WithdrawalUnlockDuration uint64
	TotalSupplyFactor        *uint256.Int
	LiquidityRewardAddress   crypto.Address
	Sigmoid                  SigmoidParams
}

// PendingChange describes a queued parameter update.
type PendingChange struct {
	Name        string
	Value       string
	EffectiveAt uint64
}

func validateFraction(name string, v *uint256.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s required", ErrInvalidParameter, name)
	}
	if v.Gt(One) {
		return fmt.Errorf("%w: %s must not exceed 100%%", ErrInvalidParameter, name)
	}
	return nil
}

func validateLockDuration(v uint64) error {
	if v == 0 || v > MaxWithdrawalLockDuration {
		return fmt.Errorf("%w: %s must be within (0, %d]", ErrInvalidParameter, ParamWithdrawalLockDuration, MaxWithdrawalLockDuration)
	}
	return nil
}

func validateUnlockDuration(v uint64) error {
	if v < MinWithdrawalUnlockDuration {
		return fmt.Errorf("%w: %s must be at least %d", ErrInvalidParameter, ParamWithdrawalUnlockDuration, MinWithdrawalUnlockDuration)
	}
	return nil
}

func validateRewardAddress(addr crypto.Address) error {
	if addr.IsZero() {
		return fmt.Errorf("%w: %s must be set", ErrInvalidParameter, ParamLiquidityRewardAddress)
	}
	return nil
}

// NewParameters validates cfg and returns initialised parameters.
func NewParameters(cfg Config) (*Parameters, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sigmoid, err := NewSigmoid(cfg.Sigmoid)
	if err != nil {
		return nil, err
	}
	return &Parameters{
		Fee:                      NewDelayed(*cloneOrZero(cfg.Fee)),
		WithdrawalLockDuration:   NewDelayed(cfg.WithdrawalLockDuration),
		WithdrawalUnlockDuration: NewDelayed(cfg.WithdrawalUnlockDuration),
		TotalSupplyFactor:        NewDelayed(*cloneOrZero(cfg.TotalSupplyFactor)),
		LiquidityRewardAddress:   NewDelayed(cfg.LiquidityRewardAddress),
		Sigmoid:                  sigmoid,
	}, nil
}

// Effective resolves every parameter at now.
func (p *Parameters) Effective(now uint64) EffectiveParameters {
	fee := p.Fee.Value(now)
	factor := p.TotalSupplyFactor.Value(now)
	return EffectiveParameters{
		Fee:                      new(uint256.Int).Set(&fee),
		WithdrawalLockDuration:   p.WithdrawalLockDuration.Value(now),
		WithdrawalUnlockDuration: p.WithdrawalUnlockDuration.Value(now),
		TotalSupplyFactor:        new(uint256.Int).Set(&factor),
		LiquidityRewardAddress:   p.LiquidityRewardAddress.Value(now),
		Sigmoid:                  p.Sigmoid.Parameters(now),
	}
}

// PendingChanges lists the queued updates at now ordered by parameter name.
func (p *Parameters) PendingChanges(now uint64) []PendingChange {
	var out []PendingChange
	if v, at, ok := p.Fee.Pending(now); ok {
		out = append(out, PendingChange{Name: ParamFee, Value: v.Dec(), EffectiveAt: at})
	}
	if v, at, ok := p.LiquidityRewardAddress.Pending(now); ok {
		out = append(out, PendingChange{Name: ParamLiquidityRewardAddress, Value: v.String(), EffectiveAt: at})
	}
	if v, at, ok := p.Sigmoid.Pending(now); ok {
		out = append(out, PendingChange{Name: ParamSigmoid, Value: v.String(), EffectiveAt: at})
	}
	if v, at, ok := p.TotalSupplyFactor.Pending(now); ok {
		out = append(out, PendingChange{Name: ParamTotalSupplyFactor, Value: v.Dec(), EffectiveAt: at})
	}
	if v, at, ok := p.WithdrawalLockDuration.Pending(now); ok {
		out = append(out, PendingChange{Name: ParamWithdrawalLockDuration, Value: fmt.Sprint(v), EffectiveAt: at})
	}
	if v, at, ok := p.WithdrawalUnlockDuration.Pending(now); ok {
		out = append(out, PendingChange{Name: ParamWithdrawalUnlockDuration, Value: fmt.Sprint(v), EffectiveAt: at})
	}
	return out
}

// emissionDisabled reports whether both rate components are switched off.
func (p *Parameters) emissionDisabled(now uint64) bool {
	factor := p.TotalSupplyFactor.Value(now)
	sig := p.Sigmoid.Parameters(now)
	return sig.A.IsZero() && factor.IsZero()
}

// Clone returns an independent copy suitable for staging.
func (p *Parameters) Clone() *Parameters {
	if p == nil {
		return nil
	}
	copied := *p
	copied.Sigmoid = p.Sigmoid.clone()
	return &copied
}
