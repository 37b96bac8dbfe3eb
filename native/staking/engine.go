package staking

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
	nativecommon "stakevault/native/common"
)

const moduleName = "staking"

// Engine orchestrates the deposit ledger, the accrual engine and the timed
// withdrawal protocol of a single staking pool.
type Engine struct {
	guard   *nativecommon.CallGuard
	pool    crypto.Address
	state   engineState
	ledger  TokenLedger
	admins  AdministratorGate
	emitter events.Emitter
	clock   func() time.Time
	logger  *slog.Logger
}

// NewEngine constructs an engine custodying funds at pool.
func NewEngine(pool crypto.Address) *Engine {
	return &Engine{
		guard:   nativecommon.NewCallGuard(moduleName),
		pool:    pool,
		emitter: events.NoopEmitter{},
		clock:   time.Now,
		logger:  slog.Default(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the custodied token.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetAdministrators configures the gate consulted by administrative calls.
func (e *Engine) SetAdministrators(gate AdministratorGate) {
	if e == nil {
		return
	}
	e.admins = gate
}

// SetEmitter configures the sink receiving committed events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the time source. Each call reads it exactly once.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil {
		return
	}
	if clock == nil {
		clock = time.Now
	}
	e.clock = clock
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// Pool returns the custody address.
func (e *Engine) Pool() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	return e.pool
}

func (e *Engine) now() uint64 {
	ts := e.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// operation is the working set of one guarded call.
type operation struct {
	ctx    context.Context
	now    uint64
	pool   crypto.Address
	state  *stagedState
	ledger TokenLedger
	params *Parameters
	events []events.Event
}

func (op *operation) parameters() (*Parameters, error) {
	if op.params != nil {
		return op.params, nil
	}
	params, err := op.state.Parameters()
	if err != nil {
		return nil, err
	}
	if params == nil {
		return nil, ErrNotInitialized
	}
	op.params = params
	return params, nil
}

func (op *operation) emit(evt events.Event) {
	op.events = append(op.events, evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil || e.guard == nil {
		return ErrNilState
	}
	return nil
}

// execute runs fn inside the call guard against a staged view of the state.
// State, ledger and events are committed only when fn succeeds.
func (e *Engine) execute(ctx context.Context, name string, fn func(op *operation) error) error {
	if err := e.ready(); err != nil {
		return err
	}
	guarded, release, err := e.guard.Enter(ctx)
	if err != nil {
		e.logger.Debug("staking operation rejected", slog.String("component", moduleName),
			slog.String("operation", name), slog.Any("error", err))
		return err
	}
	defer release()

	op := &operation{
		ctx:    guarded,
		now:    e.now(),
		pool:   e.pool,
		state:  newStagedState(e.state),
		ledger: e.ledger,
	}
	snapshot := e.ledger.Snapshot()
	if err := fn(op); err != nil {
		e.ledger.RevertToSnapshot(snapshot)
		e.logger.Debug("staking operation rejected", slog.String("component", moduleName),
			slog.String("operation", name), slog.Any("error", err))
		return err
	}
	if err := op.state.commit(); err != nil {
		e.ledger.RevertToSnapshot(snapshot)
		e.logger.Error("staking commit failed", slog.String("component", moduleName),
			slog.String("operation", name), slog.Any("error", err))
		return fmt.Errorf("staking: commit: %w", err)
	}
	for _, evt := range op.events {
		e.emitter.Emit(evt)
	}
	e.logger.Info("staking operation committed", slog.String("component", moduleName),
		slog.String("operation", name), slog.Uint64("timestamp", op.now), slog.Int("events", len(op.events)))
	return nil
}

// Initialize installs the initial parameter set. Initial values are
// effective immediately.
func (e *Engine) Initialize(ctx context.Context, cfg Config) error {
	return e.execute(ctx, "initialize", func(op *operation) error {
		existing, err := op.state.Parameters()
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyInitialized
		}
		params, err := NewParameters(cfg)
		if err != nil {
			return err
		}
		return op.state.PutParameters(params)
	})
}

// Deposit stakes amount into a fresh slot and pulls the tokens from the
// depositor's allowance to the pool.
func (e *Engine) Deposit(ctx context.Context, from crypto.Address, amount *uint256.Int) (DepositResult, error) {
	var result DepositResult
	err := e.execute(ctx, "deposit", func(op *operation) error {
		slot, err := op.nextSlot(from)
		if err != nil {
			return err
		}
		result, err = op.deposit(from, slot, amount)
		if err != nil {
			return err
		}
		return op.pull(from, amount)
	})
	return result, err
}

// DepositToSlot stakes amount into an existing slot.
func (e *Engine) DepositToSlot(ctx context.Context, from crypto.Address, slot uint64, amount *uint256.Int) (DepositResult, error) {
	var result DepositResult
	err := e.execute(ctx, "depositToSlot", func(op *operation) error {
		if err := op.requireSlot(from, slot); err != nil {
			return err
		}
		var err error
		result, err = op.deposit(from, slot, amount)
		if err != nil {
			return err
		}
		return op.pull(from, amount)
	})
	return result, err
}

// OnTokenTransfer is invoked by the ledger after tokens were pushed to the
// pool. data selects the slot: empty opens a new slot, otherwise it carries a
// big-endian slot id of 8 or 32 bytes. A call nested inside an engine
// operation is acknowledged without effect since the enclosing operation
// already accounts for the tokens.
func (e *Engine) OnTokenTransfer(ctx context.Context, from crypto.Address, amount *uint256.Int, data []byte) error {
	if e != nil && e.guard != nil && e.guard.Nested(ctx) {
		return nil
	}
	slot, explicit, err := decodeSlotData(data)
	if err != nil {
		return err
	}
	return e.execute(ctx, "onTokenTransfer", func(op *operation) error {
		target := slot
		if !explicit {
			next, err := op.nextSlot(from)
			if err != nil {
				return err
			}
			target = next
		} else if err := op.requireSlot(from, target); err != nil {
			return err
		}
		_, err := op.deposit(from, target, amount)
		return err
	})
}

func decodeSlotData(data []byte) (uint64, bool, error) {
	switch len(data) {
	case 0:
		return 0, false, nil
	case 8:
		return binary.BigEndian.Uint64(data), true, nil
	case 32:
		v := new(uint256.Int).SetBytes(data)
		if !v.IsUint64() {
			return 0, false, ErrInvalidSlot
		}
		return v.Uint64(), true, nil
	default:
		return 0, false, fmt.Errorf("%w: slot payload must be 8 or 32 bytes", ErrInvalidSlot)
	}
}

// EncodeSlotData renders a slot id in the 8 byte form accepted by
// OnTokenTransfer.
func EncodeSlotData(slot uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, slot)
}

func (op *operation) nextSlot(addr crypto.Address) (uint64, error) {
	last, err := op.state.LastSlot(addr)
	if err != nil {
		return 0, err
	}
	next := last + 1
	if err := op.state.PutLastSlot(addr, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (op *operation) requireSlot(addr crypto.Address, slot uint64) error {
	last, err := op.state.LastSlot(addr)
	if err != nil {
		return err
	}
	if slot == 0 || slot > last {
		return ErrInvalidSlot
	}
	return nil
}

func (op *operation) pull(from crypto.Address, amount *uint256.Int) error {
	if err := op.ledger.TransferFrom(op.ctx, op.pool, from, op.pool, amount); err != nil {
		return fmt.Errorf("staking: collect deposit: %w", err)
	}
	return nil
}

// deposit accrues the existing balance of the slot and adds amount to it.
// Moving the tokens is left to the caller.
func (op *operation) deposit(addr crypto.Address, slot uint64, amount *uint256.Int) (DepositResult, error) {
	if amount == nil || amount.IsZero() {
		return DepositResult{}, ErrInvalidAmount
	}
	if addr.IsZero() {
		return DepositResult{}, ErrInvalidRecipient
	}
	params, err := op.parameters()
	if err != nil {
		return DepositResult{}, err
	}
	if params.emissionDisabled(op.now) {
		return DepositResult{}, ErrEmissionDisabled
	}
	pos, err := op.state.Deposit(addr, slot)
	if err != nil {
		return DepositResult{}, err
	}
	accrual, err := op.applyAccrual(pos, AmountAll())
	if err != nil {
		return DepositResult{}, err
	}
	balance, overflow := new(uint256.Int).AddOverflow(cloneOrZero(pos.Balance), amount)
	if overflow {
		return DepositResult{}, errArithmeticOverflow
	}
	pos.Balance = balance
	pos.DepositedAt = op.now
	staked, err := op.state.TotalStaked()
	if err != nil {
		return DepositResult{}, err
	}
	staked, overflow = new(uint256.Int).AddOverflow(staked, amount)
	if overflow {
		return DepositResult{}, errArithmeticOverflow
	}
	if err := op.state.PutTotalStaked(staked); err != nil {
		return DepositResult{}, err
	}
	if err := op.state.PutDeposit(addr, slot, pos); err != nil {
		return DepositResult{}, err
	}
	op.emit(events.StakeDeposited{
		Account:             addr,
		Slot:                slot,
		Amount:              new(uint256.Int).Set(amount),
		NewBalance:          new(uint256.Int).Set(balance),
		AccruedEmission:     accrual.UserShare,
		PrevDepositDuration: accrual.Elapsed,
		Timestamp:           op.now,
	})
	return DepositResult{
		Account:    addr,
		Slot:       slot,
		NewBalance: new(uint256.Int).Set(balance),
		Accrued:    accrual.UserShare,
		Elapsed:    accrual.Elapsed,
	}, nil
}

// withdraw settles accrual on the selected part of the slot and pays it out.
// A forced withdrawal pays the fee to the liquidity reward address.
func (op *operation) withdraw(addr crypto.Address, slot uint64, amount Amount, forced bool) (WithdrawResult, error) {
	if err := op.requireSlot(addr, slot); err != nil {
		return WithdrawResult{}, err
	}
	params, err := op.parameters()
	if err != nil {
		return WithdrawResult{}, err
	}
	pos, err := op.state.Deposit(addr, slot)
	if err != nil {
		return WithdrawResult{}, err
	}
	if pos.IsEmpty() {
		return WithdrawResult{}, ErrInsufficientFunds
	}
	if !amount.IsAll() && amount.Value().Gt(pos.Balance) {
		return WithdrawResult{}, ErrInsufficientFunds
	}
	accrual, err := op.applyAccrual(pos, amount)
	if err != nil {
		return WithdrawResult{}, err
	}
	resolved := cloneOrZero(pos.Balance)
	if !amount.IsAll() {
		resolved = new(uint256.Int).Add(amount.Value(), accrual.UserShare)
	}
	pos.Balance = new(uint256.Int).Sub(pos.Balance, resolved)
	if pos.Balance.IsZero() {
		pos.DepositedAt = 0
	}
	staked, err := op.state.TotalStaked()
	if err != nil {
		return WithdrawResult{}, err
	}
	if staked.Lt(resolved) {
		return WithdrawResult{}, fmt.Errorf("%w: total staked below withdrawal", ErrInsufficientFunds)
	}
	if err := op.state.PutTotalStaked(new(uint256.Int).Sub(staked, resolved)); err != nil {
		return WithdrawResult{}, err
	}
	if err := op.state.PutDeposit(addr, slot, pos); err != nil {
		return WithdrawResult{}, err
	}

	fee := new(uint256.Int)
	if forced {
		rate := params.Fee.Value(op.now)
		fee, err = applyPercentage(resolved, &rate)
		if err != nil {
			return WithdrawResult{}, err
		}
		if err := op.transferOut(params.LiquidityRewardAddress.Value(op.now), fee); err != nil {
			return WithdrawResult{}, fmt.Errorf("staking: pay withdrawal fee: %w", err)
		}
	}
	paid := new(uint256.Int).Sub(resolved, fee)
	if err := op.transferOut(addr, paid); err != nil {
		return WithdrawResult{}, fmt.Errorf("staking: pay withdrawal: %w", err)
	}
	op.emit(events.StakeWithdrawn{
		Account:         addr,
		Slot:            slot,
		Amount:          new(uint256.Int).Set(paid),
		Fee:             new(uint256.Int).Set(fee),
		NewBalance:      cloneOrZero(pos.Balance),
		AccruedEmission: accrual.UserShare,
		Duration:        accrual.Elapsed,
		Forced:          forced,
		Timestamp:       op.now,
	})
	return WithdrawResult{
		Account:    addr,
		Slot:       slot,
		Paid:       paid,
		Fee:        fee,
		NewBalance: cloneOrZero(pos.Balance),
		Accrued:    accrual.UserShare,
		Elapsed:    accrual.Elapsed,
	}, nil
}

// IsInvalidInput reports whether err was caused by a rejected argument
// rather than a collaborator failure.
func IsInvalidInput(err error) bool {
	for _, target := range []error{ErrInvalidAmount, ErrInvalidSlot, ErrInsufficientFunds, ErrInvalidParameter, ErrInvalidRecipient} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
