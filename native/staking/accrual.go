package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// supplyBasedRate returns the supply based rate component. The rate grows
// linearly with the staked share of the supply until totalStaked reaches
// totalSupply*factor, after which it is capped at half the emission ceiling.
func supplyBasedRate(factor, totalSupply, totalStaked *uint256.Int) (*uint256.Int, error) {
	if factor == nil || factor.IsZero() {
		return new(uint256.Int), nil
	}
	target, err := MulDiv(totalSupply, factor, One)
	if err != nil {
		return nil, err
	}
	if cloneOrZero(totalStaked).Cmp(target) >= 0 {
		return new(uint256.Int).Set(maxSupplyBasedRate), nil
	}
	return MulDiv(maxSupplyBasedRate, totalStaked, target)
}

// rates captures the inputs of one emission computation.
type rates struct {
	now         uint64
	params      *Parameters
	totalSupply *uint256.Int
	totalStaked *uint256.Int
}

func (r rates) supplyRate() (*uint256.Int, error) {
	factor := r.params.TotalSupplyFactor.Value(r.now)
	return supplyBasedRate(&factor, r.totalSupply, r.totalStaked)
}

// computeAccrual returns the emission earned by amount since depositedAt.
func computeAccrual(r rates, depositedAt uint64, amount *uint256.Int) (Accrual, error) {
	if amount == nil || amount.IsZero() || depositedAt == 0 || r.now <= depositedAt {
		return zeroAccrual(0), nil
	}
	elapsed := r.now - depositedAt
	personal, err := r.params.Sigmoid.Calculate(r.now, elapsed)
	if err != nil {
		return Accrual{}, err
	}
	supply, err := r.supplyRate()
	if err != nil {
		return Accrual{}, err
	}
	userRate := new(uint256.Int).Add(personal, supply)
	if userRate.IsZero() {
		return zeroAccrual(elapsed), nil
	}
	if userRate.Gt(MaxEmissionRate) {
		return Accrual{}, fmt.Errorf("%w: %s", errRateInvariant, userRate.Dec())
	}
	elapsedInt := uint256.NewInt(elapsed)
	totalRate, overflow := new(uint256.Int).MulOverflow(MaxEmissionRate, elapsedInt)
	if overflow {
		return Accrual{}, errArithmeticOverflow
	}
	total, err := MulDiv(amount, totalRate, yearScale)
	if err != nil {
		return Accrual{}, err
	}
	scaledUserRate, overflow := new(uint256.Int).MulOverflow(userRate, elapsedInt)
	if overflow {
		return Accrual{}, errArithmeticOverflow
	}
	userShare, err := MulDiv(amount, scaledUserRate, yearScale)
	if err != nil {
		return Accrual{}, err
	}
	return Accrual{Total: total, UserShare: userShare, Elapsed: elapsed}, nil
}

// rates snapshots the emission inputs for the operation.
func (op *operation) rates() (rates, error) {
	params, err := op.parameters()
	if err != nil {
		return rates{}, err
	}
	supply, err := op.ledger.TotalSupply()
	if err != nil {
		return rates{}, fmt.Errorf("staking: total supply: %w", err)
	}
	staked, err := op.state.TotalStaked()
	if err != nil {
		return rates{}, err
	}
	return rates{now: op.now, params: params, totalSupply: supply, totalStaked: staked}, nil
}

// applyAccrual credits the emission earned by the selected part of pos and
// resets its clock. The reward share is routed to the liquidity reward
// address. pos is updated in place but not persisted.
func (op *operation) applyAccrual(pos *Position, amount Amount) (Accrual, error) {
	base := amount.Value()
	if amount.IsAll() {
		base = cloneOrZero(pos.Balance)
	}
	r, err := op.rates()
	if err != nil {
		return Accrual{}, err
	}
	accrual, err := computeAccrual(r, pos.DepositedAt, base)
	if err != nil {
		return Accrual{}, err
	}
	if !accrual.Total.IsZero() {
		if err := op.ledger.Mint(op.ctx, op.pool, accrual.Total); err != nil {
			return Accrual{}, fmt.Errorf("staking: mint emission: %w", err)
		}
		pos.Balance = new(uint256.Int).Add(cloneOrZero(pos.Balance), accrual.UserShare)
		staked := new(uint256.Int).Add(r.totalStaked, accrual.UserShare)
		if err := op.state.PutTotalStaked(staked); err != nil {
			return Accrual{}, err
		}
		if reward := accrual.RewardShare(); !reward.IsZero() {
			if err := op.transferOut(r.params.LiquidityRewardAddress.Value(op.now), reward); err != nil {
				return Accrual{}, fmt.Errorf("staking: route reward share: %w", err)
			}
		}
	}
	pos.DepositedAt = op.now
	return accrual, nil
}

func (op *operation) transferOut(to crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return op.ledger.Transfer(op.ctx, op.pool, to, amount)
}
