package staking

import (
	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// Position is the deposit record for one (account, slot) pair. A zero balance
// always pairs with a zero DepositedAt.
type Position struct {
	Balance *uint256.Int
	// DepositedAt is the unix second at which the compounding clock was last
	// reset.
	DepositedAt uint64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return &Position{Balance: new(uint256.Int)}
	}
	return &Position{Balance: cloneOrZero(p.Balance), DepositedAt: p.DepositedAt}
}

// IsEmpty reports whether the slot currently holds nothing.
func (p *Position) IsEmpty() bool {
	return p == nil || p.Balance == nil || p.Balance.IsZero()
}

// Amount selects how much of a slot a withdrawal touches.
type Amount struct {
	all   bool
	value uint256.Int
}

// AmountAll withdraws the full balance including the yield accrued by the
// withdrawal itself.
func AmountAll() Amount {
	return Amount{all: true}
}

// AmountOf withdraws v plus the yield accrued on v. A zero v is equivalent to
// AmountAll.
func AmountOf(v *uint256.Int) Amount {
	if v == nil || v.IsZero() {
		return AmountAll()
	}
	var a Amount
	a.value.Set(v)
	return a
}

// IsAll reports whether the amount selects the entire slot.
func (a Amount) IsAll() bool {
	return a.all
}

// Value returns the explicit amount, or zero for AmountAll.
func (a Amount) Value() *uint256.Int {
	if a.all {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(&a.value)
}

func (a Amount) String() string {
	if a.all {
		return "all"
	}
	return a.value.Dec()
}

// Accrual is the outcome of an emission computation.
type Accrual struct {
	// Total is the full amount minted at the maximum emission rate.
	Total *uint256.Int
	// UserShare is the part credited to the depositor.
	UserShare *uint256.Int
	// Elapsed is the number of seconds since the deposit clock was reset.
	Elapsed uint64
}

// RewardShare is the part of the emission routed to the reward address.
func (a Accrual) RewardShare() *uint256.Int {
	total := cloneOrZero(a.Total)
	return total.Sub(total, cloneOrZero(a.UserShare))
}

func zeroAccrual(elapsed uint64) Accrual {
	return Accrual{Total: new(uint256.Int), UserShare: new(uint256.Int), Elapsed: elapsed}
}

// WithdrawalPhase describes where a slot sits in the timed withdrawal
// protocol.
type WithdrawalPhase string

const (
	PhaseNoRequest  WithdrawalPhase = "none"
	PhaseLocked     WithdrawalPhase = "locked"
	PhaseExecutable WithdrawalPhase = "executable"
	PhaseExpired    WithdrawalPhase = "expired"
)

// WithdrawalStatus summarises the timed withdrawal state of a slot.
type WithdrawalStatus struct {
	Phase       WithdrawalPhase
	RequestedAt uint64
	LockEnd     uint64
	UnlockEnd   uint64
}

// DepositResult describes a committed deposit.
type DepositResult struct {
	Account    crypto.Address
	Slot       uint64
	NewBalance *uint256.Int
	Accrued    *uint256.Int
	Elapsed    uint64
}

// WithdrawResult describes a committed withdrawal.
type WithdrawResult struct {
	Account    crypto.Address
	Slot       uint64
	Paid       *uint256.Int
	Fee        *uint256.Int
	NewBalance *uint256.Int
	Accrued    *uint256.Int
	Elapsed    uint64
}
