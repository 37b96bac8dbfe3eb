package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// ParametersView is the effective parameter set together with queued
// changes.
type ParametersView struct {
	Effective EffectiveParameters
	Pending   []PendingChange
	Timestamp uint64
}

func (e *Engine) committedParameters() (*Parameters, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	params, err := e.state.Parameters()
	if err != nil {
		return nil, err
	}
	if params == nil {
		return nil, ErrNotInitialized
	}
	return params, nil
}

// Position returns the committed record of a slot.
func (e *Engine) Position(addr crypto.Address, slot uint64) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.Deposit(addr, slot)
}

// LastSlot returns the highest slot id issued to addr.
func (e *Engine) LastSlot(addr crypto.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	return e.state.LastSlot(addr)
}

// TotalStaked returns the committed sum of all slot balances.
func (e *Engine) TotalStaked() (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.TotalStaked()
}

func (e *Engine) viewRates() (rates, error) {
	if err := e.ready(); err != nil {
		return rates{}, err
	}
	params, err := e.committedParameters()
	if err != nil {
		return rates{}, err
	}
	supply, err := e.ledger.TotalSupply()
	if err != nil {
		return rates{}, fmt.Errorf("staking: total supply: %w", err)
	}
	staked, err := e.state.TotalStaked()
	if err != nil {
		return rates{}, err
	}
	return rates{now: e.now(), params: params, totalSupply: supply, totalStaked: staked}, nil
}

// EstimateAccrual previews the emission amount staked since depositedAt
// would earn now, without touching state.
func (e *Engine) EstimateAccrual(depositedAt uint64, amount *uint256.Int) (Accrual, error) {
	r, err := e.viewRates()
	if err != nil {
		return Accrual{}, err
	}
	return computeAccrual(r, depositedAt, amount)
}

// SupplyBasedRate returns the current supply based rate component.
func (e *Engine) SupplyBasedRate() (*uint256.Int, error) {
	r, err := e.viewRates()
	if err != nil {
		return nil, err
	}
	return r.supplyRate()
}

// Parameters returns the effective parameters and any queued change.
func (e *Engine) Parameters() (ParametersView, error) {
	params, err := e.committedParameters()
	if err != nil {
		return ParametersView{}, err
	}
	now := e.now()
	return ParametersView{
		Effective: params.Effective(now),
		Pending:   params.PendingChanges(now),
		Timestamp: now,
	}, nil
}

// WithdrawalStatus reports the timed withdrawal phase of a slot.
func (e *Engine) WithdrawalStatus(addr crypto.Address, slot uint64) (WithdrawalStatus, error) {
	params, err := e.committedParameters()
	if err != nil {
		return WithdrawalStatus{}, err
	}
	requestedAt, err := e.state.WithdrawalRequest(addr, slot)
	if err != nil {
		return WithdrawalStatus{}, err
	}
	return withdrawalStatus(params, e.now(), requestedAt), nil
}
