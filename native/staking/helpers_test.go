package staking

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
	"stakevault/native/token"
)

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.NewAddress(crypto.StakePrefix, raw)
}

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), One)
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	now    uint64
	engine *Engine
	state  *MemoryState
	ledger *token.Ledger
	events *events.Recorder
	pool   crypto.Address
	admin  crypto.Address
	reward crypto.Address
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		now:    t0,
		state:  NewMemoryState(),
		ledger: token.NewLedger("STK"),
		events: &events.Recorder{},
		pool:   crypto.DeriveModuleAddress("test"),
		admin:  makeAddress(0xAA),
		reward: makeAddress(0xEE),
	}
	f.engine = NewEngine(f.pool)
	f.engine.SetState(f.state)
	f.engine.SetLedger(f.ledger)
	f.engine.SetEmitter(f.events)
	f.engine.SetAdministrators(NewStaticAdministrators(f.admin))
	f.engine.SetClock(func() time.Time { return time.Unix(int64(f.now), 0) })
	f.ledger.RegisterReceiver(f.pool, f.engine)

	cfg := DefaultConfig()
	cfg.LiquidityRewardAddress = f.reward
	if mutate != nil {
		mutate(&cfg)
	}
	if err := f.engine.Initialize(f.ctx, cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	f.events.Reset()
	return f
}

func (f *fixture) advance(seconds uint64) {
	f.now += seconds
}

// fund mints amount to addr and approves the pool to pull it.
func (f *fixture) fund(addr crypto.Address, amount *uint256.Int) {
	f.t.Helper()
	if err := f.ledger.Mint(f.ctx, addr, amount); err != nil {
		f.t.Fatalf("mint: %v", err)
	}
	allowance := f.ledger.Allowance(addr, f.pool)
	if err := f.ledger.Approve(addr, f.pool, allowance.Add(allowance, amount)); err != nil {
		f.t.Fatalf("approve: %v", err)
	}
}

func (f *fixture) balance(addr crypto.Address) *uint256.Int {
	f.t.Helper()
	bal, err := f.ledger.BalanceOf(addr)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) position(addr crypto.Address, slot uint64) *Position {
	f.t.Helper()
	pos, err := f.engine.Position(addr, slot)
	if err != nil {
		f.t.Fatalf("position: %v", err)
	}
	return pos
}

// checkInvariants verifies the balance/timestamp pairing and that
// totalStaked equals the sum of every slot balance.
func (f *fixture) checkInvariants() {
	f.t.Helper()
	sum := new(uint256.Int)
	err := f.state.ForEachDeposit(func(addr crypto.Address, slot uint64, pos *Position) error {
		if pos.IsEmpty() != (pos.DepositedAt == 0) {
			f.t.Fatalf("slot %s/%d: balance %s with timestamp %d", addr, slot, pos.Balance.Dec(), pos.DepositedAt)
		}
		sum.Add(sum, pos.Balance)
		return nil
	})
	if err != nil {
		f.t.Fatalf("iterate: %v", err)
	}
	total, err := f.engine.TotalStaked()
	if err != nil {
		f.t.Fatalf("total staked: %v", err)
	}
	if !total.Eq(sum) {
		f.t.Fatalf("totalStaked %s != sum of balances %s", total.Dec(), sum.Dec())
	}
	held := f.balance(f.pool)
	if held.Lt(total) {
		f.t.Fatalf("pool holds %s below totalStaked %s", held.Dec(), total.Dec())
	}
}

func lastEvent(t *testing.T, rec *events.Recorder) events.Event {
	t.Helper()
	evts := rec.Events()
	if len(evts) == 0 {
		t.Fatalf("no events recorded")
	}
	return evts[len(evts)-1]
}
