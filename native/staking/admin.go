package staking

import (
	"context"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
)

func (e *Engine) authorize(caller crypto.Address) error {
	if e.admins == nil {
		return ErrUnauthorized
	}
	return e.admins.RequireAuthorized(caller)
}

// updateParameter runs an authorised parameter change. apply validates and
// queues the value on the staged parameters and returns its rendering.
func (e *Engine) updateParameter(ctx context.Context, caller crypto.Address, name string, apply func(now uint64, p *Parameters) (string, uint64, error)) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	return e.execute(ctx, "set:"+name, func(op *operation) error {
		params, err := op.parameters()
		if err != nil {
			return err
		}
		value, effectiveAt, err := apply(op.now, params)
		if err != nil {
			return err
		}
		if err := op.state.PutParameters(params); err != nil {
			return err
		}
		op.emit(events.StakeParameterChanged{
			Name:        name,
			Value:       value,
			ChangedBy:   caller,
			EffectiveAt: effectiveAt,
			Timestamp:   op.now,
		})
		return nil
	})
}

// SetFee queues a new forced withdrawal fee expressed as a fraction of One.
func (e *Engine) SetFee(ctx context.Context, caller crypto.Address, fee *uint256.Int) error {
	return e.updateParameter(ctx, caller, ParamFee, func(now uint64, p *Parameters) (string, uint64, error) {
		if err := validateFraction(ParamFee, fee); err != nil {
			return "", 0, err
		}
		p.Fee.Set(now, *fee)
		return fee.Dec(), p.Fee.EffectiveAt(), nil
	})
}

// SetWithdrawalLockDuration queues a new lock duration in seconds.
func (e *Engine) SetWithdrawalLockDuration(ctx context.Context, caller crypto.Address, seconds uint64) error {
	return e.updateParameter(ctx, caller, ParamWithdrawalLockDuration, func(now uint64, p *Parameters) (string, uint64, error) {
		if err := validateLockDuration(seconds); err != nil {
			return "", 0, err
		}
		p.WithdrawalLockDuration.Set(now, seconds)
		return strconv.FormatUint(seconds, 10), p.WithdrawalLockDuration.EffectiveAt(), nil
	})
}

// SetWithdrawalUnlockDuration queues a new execution window length in seconds.
func (e *Engine) SetWithdrawalUnlockDuration(ctx context.Context, caller crypto.Address, seconds uint64) error {
	return e.updateParameter(ctx, caller, ParamWithdrawalUnlockDuration, func(now uint64, p *Parameters) (string, uint64, error) {
		if err := validateUnlockDuration(seconds); err != nil {
			return "", 0, err
		}
		p.WithdrawalUnlockDuration.Set(now, seconds)
		return strconv.FormatUint(seconds, 10), p.WithdrawalUnlockDuration.EffectiveAt(), nil
	})
}

// SetTotalSupplyFactor queues a new supply factor expressed as a fraction of
// One. Zero disables the supply based rate.
func (e *Engine) SetTotalSupplyFactor(ctx context.Context, caller crypto.Address, factor *uint256.Int) error {
	return e.updateParameter(ctx, caller, ParamTotalSupplyFactor, func(now uint64, p *Parameters) (string, uint64, error) {
		if err := validateFraction(ParamTotalSupplyFactor, factor); err != nil {
			return "", 0, err
		}
		p.TotalSupplyFactor.Set(now, *factor)
		return factor.Dec(), p.TotalSupplyFactor.EffectiveAt(), nil
	})
}

// SetLiquidityRewardAddress queues a new sink for reward shares and fees.
func (e *Engine) SetLiquidityRewardAddress(ctx context.Context, caller crypto.Address, addr crypto.Address) error {
	return e.updateParameter(ctx, caller, ParamLiquidityRewardAddress, func(now uint64, p *Parameters) (string, uint64, error) {
		if err := validateRewardAddress(addr); err != nil {
			return "", 0, err
		}
		if addr.Equal(e.pool) {
			return "", 0, fmt.Errorf("%w: reward address must differ from the pool", ErrInvalidParameter)
		}
		p.LiquidityRewardAddress.Set(now, addr)
		return addr.String(), p.LiquidityRewardAddress.EffectiveAt(), nil
	})
}

// SetSigmoidParameters queues new rate curve parameters.
func (e *Engine) SetSigmoidParameters(ctx context.Context, caller crypto.Address, params SigmoidParams) error {
	return e.updateParameter(ctx, caller, ParamSigmoid, func(now uint64, p *Parameters) (string, uint64, error) {
		if err := p.Sigmoid.SetParameters(now, params); err != nil {
			return "", 0, err
		}
		return params.String(), p.Sigmoid.params.EffectiveAt(), nil
	})
}

// ClaimStrayFunds sweeps tokens held by the pool in excess of the staked
// principal to to.
func (e *Engine) ClaimStrayFunds(ctx context.Context, caller, to crypto.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.authorize(caller); err != nil {
		return nil, err
	}
	var claimed *uint256.Int
	err := e.execute(ctx, "claimStrayFunds", func(op *operation) error {
		if to.IsZero() || to.Equal(op.pool) {
			return ErrInvalidRecipient
		}
		surplus, err := op.surplus()
		if err != nil {
			return err
		}
		if surplus.IsZero() {
			return ErrNothingToClaim
		}
		if err := op.transferOut(to, surplus); err != nil {
			return fmt.Errorf("staking: claim stray funds: %w", err)
		}
		claimed = surplus
		op.emit(events.StakeStrayFundsClaimed{To: to, Amount: new(uint256.Int).Set(surplus), ClaimedBy: caller, Timestamp: op.now})
		return nil
	})
	return claimed, err
}

// surplus is the pool balance above totalStaked.
func (op *operation) surplus() (*uint256.Int, error) {
	balance, err := op.ledger.BalanceOf(op.pool)
	if err != nil {
		return nil, fmt.Errorf("staking: pool balance: %w", err)
	}
	staked, err := op.state.TotalStaked()
	if err != nil {
		return nil, err
	}
	if balance.Cmp(staked) <= 0 {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(balance, staked), nil
}
