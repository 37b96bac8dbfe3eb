package events

import (
	"strings"

	"github.com/holiman/uint256"

	"stakevault/core/types"
	"stakevault/crypto"
)

const (
	// TypeStakeDeposited is emitted when principal is added to a deposit slot.
	TypeStakeDeposited = "stake.deposited"
	// TypeStakeWithdrawn is emitted when funds leave a deposit slot.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeWithdrawalRequested is emitted when a timed withdrawal window is
	// opened for a slot.
	TypeStakeWithdrawalRequested = "stake.withdrawalRequested"
	// TypeStakeParameterChanged is emitted for every administrator parameter
	// update.
	TypeStakeParameterChanged = "stake.parameterChanged"
	// TypeStakeStrayFundsClaimed is emitted when surplus pool tokens are swept.
	TypeStakeStrayFundsClaimed = "stake.strayFundsClaimed"
)

// StakeDeposited captures a deposit into a slot together with the yield that
// was accrued on the previous balance.
type StakeDeposited struct {
	Account         crypto.Address
	Slot            uint64
	Amount          *uint256.Int
	NewBalance      *uint256.Int
	AccruedEmission *uint256.Int
	// PrevDepositDuration is the number of seconds the previous balance
	// had been staked since its clock was last reset.
	PrevDepositDuration uint64
	Timestamp           uint64
}

// EventType satisfies the Event interface.
func (StakeDeposited) EventType() string { return TypeStakeDeposited }

// Event converts the structured payload into a broadcastable event.
func (e StakeDeposited) Event() *types.Event {
	attrs := map[string]string{
		"addr":       e.Account.String(),
		"slot":       formatUint(e.Slot),
		"amount":     formatAmount(e.Amount),
		"newBalance": formatAmount(e.NewBalance),
		"accrued":    formatAmount(e.AccruedEmission),
	}
	if e.PrevDepositDuration > 0 {
		attrs["prevDepositDuration"] = formatUint(e.PrevDepositDuration)
	}
	return &types.Event{Type: TypeStakeDeposited, Attributes: attrs, Timestamp: e.Timestamp}
}

// StakeWithdrawn captures a withdrawal. Amount is the net amount delivered to
// the account after any fee.
type StakeWithdrawn struct {
	Account         crypto.Address
	Slot            uint64
	Amount          *uint256.Int
	Fee             *uint256.Int
	NewBalance      *uint256.Int
	AccruedEmission *uint256.Int
	Duration        uint64
	Forced          bool
	Timestamp       uint64
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"addr":       e.Account.String(),
		"slot":       formatUint(e.Slot),
		"amount":     formatAmount(e.Amount),
		"fee":        formatAmount(e.Fee),
		"newBalance": formatAmount(e.NewBalance),
		"accrued":    formatAmount(e.AccruedEmission),
		"duration":   formatUint(e.Duration),
	}
	if e.Forced {
		attrs["forced"] = "true"
	}
	return &types.Event{Type: TypeStakeWithdrawn, Attributes: attrs, Timestamp: e.Timestamp}
}

// StakeWithdrawalRequested records the opening of a timed withdrawal window.
type StakeWithdrawalRequested struct {
	Account   crypto.Address
	Slot      uint64
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (StakeWithdrawalRequested) EventType() string { return TypeStakeWithdrawalRequested }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawalRequested) Event() *types.Event {
	attrs := map[string]string{
		"addr": e.Account.String(),
		"slot": formatUint(e.Slot),
	}
	return &types.Event{Type: TypeStakeWithdrawalRequested, Attributes: attrs, Timestamp: e.Timestamp}
}

// StakeParameterChanged records a pending parameter change and the
// administrator that issued it.
type StakeParameterChanged struct {
	Name      string
	Value     string
	ChangedBy crypto.Address
	// EffectiveAt is the first unix second at which the value applies.
	EffectiveAt uint64
	Timestamp   uint64
}

// EventType satisfies the Event interface.
func (StakeParameterChanged) EventType() string { return TypeStakeParameterChanged }

// Event converts the structured payload into a broadcastable event.
func (e StakeParameterChanged) Event() *types.Event {
	attrs := map[string]string{
		"name":  strings.TrimSpace(e.Name),
		"value": e.Value,
	}
	if !e.ChangedBy.IsZero() {
		attrs["changedBy"] = e.ChangedBy.String()
	}
	if e.EffectiveAt > 0 {
		attrs["effectiveAt"] = formatUint(e.EffectiveAt)
	}
	return &types.Event{Type: TypeStakeParameterChanged, Attributes: attrs, Timestamp: e.Timestamp}
}

// StakeStrayFundsClaimed records a sweep of tokens held by the pool above the
// staked principal.
type StakeStrayFundsClaimed struct {
	To        crypto.Address
	Amount    *uint256.Int
	ClaimedBy crypto.Address
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (StakeStrayFundsClaimed) EventType() string { return TypeStakeStrayFundsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e StakeStrayFundsClaimed) Event() *types.Event {
	attrs := map[string]string{
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}
	if !e.ClaimedBy.IsZero() {
		attrs["claimedBy"] = e.ClaimedBy.String()
	}
	return &types.Event{Type: TypeStakeStrayFundsClaimed, Attributes: attrs, Timestamp: e.Timestamp}
}
