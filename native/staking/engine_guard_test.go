package staking

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// faultyLedger wraps the token ledger and fails selected operations.
type faultyLedger struct {
	TokenLedger
	failTransferTo crypto.Address
	failMint       bool
	onTransfer     func(ctx context.Context) error
}

var errLedgerDown = errors.New("ledger unavailable")

func (l *faultyLedger) Transfer(ctx context.Context, from, to crypto.Address, amount *uint256.Int) error {
	if l.onTransfer != nil {
		if err := l.onTransfer(ctx); err != nil {
			return err
		}
	}
	if !l.failTransferTo.IsZero() && to.Equal(l.failTransferTo) {
		return errLedgerDown
	}
	return l.TokenLedger.Transfer(ctx, from, to, amount)
}

func (l *faultyLedger) Mint(ctx context.Context, to crypto.Address, amount *uint256.Int) error {
	if l.failMint {
		return errLedgerDown
	}
	return l.TokenLedger.Mint(ctx, to, amount)
}

func TestCollaboratorFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	user := makeAddress(1)
	f.fund(user, units(100))
	if _, err := f.engine.Deposit(f.ctx, user, units(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.advance(10 * 24 * 3600)

	faulty := &faultyLedger{TokenLedger: f.ledger, failTransferTo: user}
	f.engine.SetLedger(faulty)
	supplyBefore, _ := f.ledger.TotalSupply()
	rewardBefore := f.balance(f.reward)
	posBefore := f.position(user, 1)
	f.events.Reset()

	if _, err := f.engine.MakeForcedWithdrawal(f.ctx, user, 1, AmountAll()); !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected ledger failure, got %v", err)
	}
	supplyAfter, _ := f.ledger.TotalSupply()
	if !supplyAfter.Eq(supplyBefore) {
		t.Fatalf("emission mint not reverted: %s -> %s", supplyBefore.Dec(), supplyAfter.Dec())
	}
	if !f.balance(f.reward).Eq(rewardBefore) {
		t.Fatalf("reward and fee transfers not reverted")
	}
	posAfter := f.position(user, 1)
	if !posAfter.Balance.Eq(posBefore.Balance) || posAfter.DepositedAt != posBefore.DepositedAt {
		t.Fatalf("position changed after failure")
	}
	if len(f.events.Events()) != 0 {
		t.Fatalf("events emitted for a failed operation")
	}
	f.checkInvariants()

	faulty.failTransferTo = crypto.Address{}
	faulty.failMint = true
	if _, err := f.engine.DepositToSlot(f.ctx, user, 1, units(1)); !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected mint failure, got %v", err)
	}
	f.checkInvariants()
}

func TestNestedCallsAreRejected(t *testing.T) {
	f := newFixture(t, nil)
	user := makeAddress(1)
	f.fund(user, units(100))
	if _, err := f.engine.Deposit(f.ctx, user, units(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var nestedErr error
	faulty := &faultyLedger{TokenLedger: f.ledger}
	faulty.onTransfer = func(ctx context.Context) error {
		_, nestedErr = f.engine.Deposit(ctx, user, units(1))
		return nil
	}
	f.engine.SetLedger(faulty)

	if _, err := f.engine.MakeForcedWithdrawal(f.ctx, user, 1, AmountOf(units(10))); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !errors.Is(nestedErr, ErrReentrantCall) {
		t.Fatalf("nested deposit must be rejected, got %v", nestedErr)
	}
	if last, _ := f.engine.LastSlot(user); last != 1 {
		t.Fatalf("nested call touched state: last slot %d", last)
	}
	f.checkInvariants()
}

func TestNestedPushHookIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	user := makeAddress(1)
	f.fund(user, units(100))
	if _, err := f.engine.Deposit(f.ctx, user, units(50)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var hookErr error
	faulty := &faultyLedger{TokenLedger: f.ledger}
	faulty.onTransfer = func(ctx context.Context) error {
		hookErr = f.engine.OnTokenTransfer(ctx, user, units(5), nil)
		return nil
	}
	f.engine.SetLedger(faulty)

	if _, err := f.engine.MakeForcedWithdrawal(f.ctx, user, 1, AmountOf(units(10))); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if hookErr != nil {
		t.Fatalf("nested hook must succeed silently, got %v", hookErr)
	}
	if last, _ := f.engine.LastSlot(user); last != 1 {
		t.Fatalf("nested hook opened a slot")
	}
	f.checkInvariants()
}

func TestEngineRequiresWiring(t *testing.T) {
	engine := NewEngine(crypto.DeriveModuleAddress("bare"))
	if _, err := engine.Deposit(context.Background(), makeAddress(1), units(1)); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected nil state, got %v", err)
	}
	engine.SetState(NewMemoryState())
	if _, err := engine.TotalStaked(); err != nil {
		t.Fatalf("total staked on empty state: %v", err)
	}
	if _, err := engine.Parameters(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialised, got %v", err)
	}
}
