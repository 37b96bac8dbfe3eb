package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"stakevault/core/events"
	"stakevault/crypto"
)

var (
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrInvalidAddress        = errors.New("token: address required")
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrSupplyOverflow        = errors.New("token: supply overflow")
)

// Receiver is notified by TransferAndCall after tokens arrive.
type Receiver interface {
	OnTokenTransfer(ctx context.Context, from crypto.Address, amount *uint256.Int, data []byte) error
}

type addrKey = [crypto.AddressLength]byte

type allowanceKey struct {
	owner   addrKey
	spender addrKey
}

// Ledger is an in-memory fungible token with journaled snapshots. Mutations
// are recorded in a journal until Commit so that a caller can roll a failed
// multi-step operation back with RevertToSnapshot.
type Ledger struct {
	mu         sync.Mutex
	symbol     string
	addrs      map[addrKey]crypto.Address
	balances   map[addrKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     *uint256.Int
	receivers  map[addrKey]Receiver

	journal        []journalEntry
	revisions      []revision
	nextRevisionID int
	pending        []events.Event

	emitter events.Emitter
	clock   func() time.Time
}

// NewLedger constructs an empty token ledger.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		addrs:      make(map[addrKey]crypto.Address),
		balances:   make(map[addrKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supply:     new(uint256.Int),
		receivers:  make(map[addrKey]Receiver),
		emitter:    events.NoopEmitter{},
		clock:      time.Now,
	}
}

// Symbol returns the ticker used in emitted events.
func (l *Ledger) Symbol() string { return l.symbol }

// SetEmitter configures the sink receiving committed token events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetClock overrides the time source used for event timestamps.
func (l *Ledger) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if clock == nil {
		clock = time.Now
	}
	l.clock = clock
}

// RegisterReceiver installs the TransferAndCall hook for addr.
func (l *Ledger) RegisterReceiver(addr crypto.Address, receiver Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if receiver == nil {
		delete(l.receivers, addr.Key())
		return
	}
	l.receivers[addr.Key()] = receiver
}

func (l *Ledger) timestamp() uint64 {
	ts := l.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (l *Ledger) balanceLocked(key addrKey) *uint256.Int {
	if bal, ok := l.balances[key]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (l *Ledger) setBalanceLocked(addr crypto.Address, value *uint256.Int) {
	key := addr.Key()
	prev, existed := l.balances[key]
	l.journal = append(l.journal, balanceChange{account: key, prev: prev, existed: existed})
	if _, ok := l.addrs[key]; !ok {
		l.addrs[key] = addr
	}
	l.balances[key] = value
}

func (l *Ledger) allowanceLocked(key allowanceKey) *uint256.Int {
	if v, ok := l.allowances[key]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (l *Ledger) setAllowanceLocked(key allowanceKey, value *uint256.Int) {
	prev, existed := l.allowances[key]
	l.journal = append(l.journal, allowanceChange{key: key, prev: prev, existed: existed})
	l.allowances[key] = value
}

func validTransfer(from, to crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	return nil
}

func (l *Ledger) transferLocked(from, to crypto.Address, amount *uint256.Int) error {
	fromBal := l.balanceLocked(from.Key())
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal.Dec(), amount.Dec())
	}
	l.setBalanceLocked(from, new(uint256.Int).Sub(fromBal, amount))
	toBal := l.balanceLocked(to.Key())
	l.setBalanceLocked(to, new(uint256.Int).Add(toBal, amount))
	l.record(events.Transfer{
		Token:     l.symbol,
		From:      from,
		To:        to,
		Amount:    new(uint256.Int).Set(amount),
		Timestamp: l.timestamp(),
	})
	return nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(_ context.Context, from, to crypto.Address, amount *uint256.Int) error {
	if err := validTransfer(from, to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(from, to, amount)
}

// Approve sets the amount spender may move out of owner's balance.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *uint256.Int) error {
	if owner.IsZero() || spender.IsZero() {
		return ErrInvalidAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.addrs[owner.Key()]; !ok {
		l.addrs[owner.Key()] = owner
	}
	if _, ok := l.addrs[spender.Key()]; !ok {
		l.addrs[spender.Key()] = spender
	}
	value := new(uint256.Int)
	if amount != nil {
		value.Set(amount)
	}
	l.setAllowanceLocked(allowanceKey{owner: owner.Key(), spender: spender.Key()}, value)
	return nil
}

// Allowance returns the amount spender may still move on behalf of owner.
func (l *Ledger) Allowance(owner, spender crypto.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowanceLocked(allowanceKey{owner: owner.Key(), spender: spender.Key()})
}

// TransferFrom moves amount out of from using spender's allowance.
func (l *Ledger) TransferFrom(_ context.Context, spender, from, to crypto.Address, amount *uint256.Int) error {
	if err := validTransfer(from, to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey{owner: from.Key(), spender: spender.Key()}
	allowance := l.allowanceLocked(key)
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance.Dec(), amount.Dec())
	}
	if err := l.transferLocked(from, to, amount); err != nil {
		return err
	}
	l.setAllowanceLocked(key, new(uint256.Int).Sub(allowance, amount))
	return nil
}

// Mint creates amount new tokens credited to to.
func (l *Ledger) Mint(_ context.Context, to crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if to.IsZero() {
		return ErrInvalidAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, overflow := new(uint256.Int).AddOverflow(l.supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	l.journal = append(l.journal, supplyChange{prev: l.supply})
	l.supply = supply
	l.setBalanceLocked(to, new(uint256.Int).Add(l.balanceLocked(to.Key()), amount))
	l.record(events.TokenSupply{
		Token:     l.symbol,
		To:        to,
		Total:     new(uint256.Int).Set(supply),
		Delta:     new(uint256.Int).Set(amount),
		Reason:    events.SupplyReasonMint,
		Timestamp: l.timestamp(),
	})
	return nil
}

// BalanceOf returns the balance of addr.
func (l *Ledger) BalanceOf(addr crypto.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(addr.Key()), nil
}

// TotalSupply returns the number of tokens in existence.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.supply), nil
}

// TransferAndCall transfers amount and notifies the receiver registered for
// to, if any. A failing receiver reverts the transfer. The ledger lock is not
// held while the receiver runs so it may call back into the ledger.
func (l *Ledger) TransferAndCall(ctx context.Context, from, to crypto.Address, amount *uint256.Int, data []byte) error {
	if err := validTransfer(from, to, amount); err != nil {
		return err
	}
	snapshot := l.Snapshot()
	l.mu.Lock()
	err := l.transferLocked(from, to, amount)
	receiver := l.receivers[to.Key()]
	l.mu.Unlock()
	if err != nil {
		l.RevertToSnapshot(snapshot)
		return err
	}
	if receiver == nil {
		return nil
	}
	if err := receiver.OnTokenTransfer(ctx, from, new(uint256.Int).Set(amount), data); err != nil {
		l.RevertToSnapshot(snapshot)
		return fmt.Errorf("token: receiver rejected transfer: %w", err)
	}
	return nil
}
