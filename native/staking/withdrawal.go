package staking

import (
	"context"

	"stakevault/core/events"
	"stakevault/crypto"
)

// RequestWithdrawal opens the timed withdrawal window for a slot. Repeating
// the request restarts the lock.
func (e *Engine) RequestWithdrawal(ctx context.Context, addr crypto.Address, slot uint64) (WithdrawalStatus, error) {
	var status WithdrawalStatus
	err := e.execute(ctx, "requestWithdrawal", func(op *operation) error {
		if err := op.requireSlot(addr, slot); err != nil {
			return err
		}
		params, err := op.parameters()
		if err != nil {
			return err
		}
		if err := op.state.PutWithdrawalRequest(addr, slot, op.now); err != nil {
			return err
		}
		status = withdrawalStatus(params, op.now, op.now)
		op.emit(events.StakeWithdrawalRequested{Account: addr, Slot: slot, Timestamp: op.now})
		return nil
	})
	return status, err
}

// MakeRequestedWithdrawal withdraws without a fee inside the window opened by
// RequestWithdrawal. A missed window leaves the request and the slot intact.
func (e *Engine) MakeRequestedWithdrawal(ctx context.Context, addr crypto.Address, slot uint64, amount Amount) (WithdrawResult, error) {
	var result WithdrawResult
	err := e.execute(ctx, "makeRequestedWithdrawal", func(op *operation) error {
		requestedAt, err := op.state.WithdrawalRequest(addr, slot)
		if err != nil {
			return err
		}
		if requestedAt == 0 {
			return ErrWithdrawalNotRequested
		}
		params, err := op.parameters()
		if err != nil {
			return err
		}
		status := withdrawalStatus(params, op.now, requestedAt)
		switch status.Phase {
		case PhaseLocked:
			return ErrWithdrawalTooEarly
		case PhaseExpired:
			return ErrWithdrawalTooLate
		}
		if err := op.state.PutWithdrawalRequest(addr, slot, 0); err != nil {
			return err
		}
		result, err = op.withdraw(addr, slot, amount, false)
		return err
	})
	return result, err
}

// MakeForcedWithdrawal withdraws immediately, charging the withdrawal fee.
// Outstanding requests are left untouched.
func (e *Engine) MakeForcedWithdrawal(ctx context.Context, addr crypto.Address, slot uint64, amount Amount) (WithdrawResult, error) {
	var result WithdrawResult
	err := e.execute(ctx, "makeForcedWithdrawal", func(op *operation) error {
		var err error
		result, err = op.withdraw(addr, slot, amount, true)
		return err
	})
	return result, err
}

// withdrawalStatus derives the window phase for a request made at
// requestedAt. The window is [lockEnd, lockEnd+unlock).
func withdrawalStatus(params *Parameters, now, requestedAt uint64) WithdrawalStatus {
	if requestedAt == 0 {
		return WithdrawalStatus{Phase: PhaseNoRequest}
	}
	lockEnd := requestedAt + params.WithdrawalLockDuration.Value(now)
	unlockEnd := lockEnd + params.WithdrawalUnlockDuration.Value(now)
	status := WithdrawalStatus{RequestedAt: requestedAt, LockEnd: lockEnd, UnlockEnd: unlockEnd}
	switch {
	case now < lockEnd:
		status.Phase = PhaseLocked
	case now < unlockEnd:
		status.Phase = PhaseExecutable
	default:
		status.Phase = PhaseExpired
	}
	return status
}
