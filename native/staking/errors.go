package staking

import (
	"errors"

	nativecommon "stakevault/native/common"
)

var (
	// ErrNilState is returned when the engine is used before it is wired.
	ErrNilState = errors.New("staking: engine not configured")

	ErrInvalidAmount     = errors.New("staking: amount must be positive")
	ErrInvalidSlot       = errors.New("staking: wrong deposit id")
	ErrInsufficientFunds = errors.New("staking: insufficient funds")
	ErrInvalidParameter  = errors.New("staking: invalid parameter")
	ErrInvalidRecipient  = errors.New("staking: invalid recipient")

	ErrWithdrawalNotRequested = errors.New("staking: withdrawal wasn't requested")
	ErrWithdrawalTooEarly     = errors.New("staking: too early")
	ErrWithdrawalTooLate      = errors.New("staking: too late")

	ErrUnauthorized = errors.New("staking: caller is not an administrator")

	// ErrEmissionDisabled halts new deposits while both rate components are
	// switched off. Withdrawals remain available.
	ErrEmissionDisabled = errors.New("staking: emission is disabled")

	ErrNothingToClaim = errors.New("staking: nothing to claim")

	ErrNotInitialized     = errors.New("staking: pool not initialised")
	ErrAlreadyInitialized = errors.New("staking: pool already initialised")

	// ErrReentrantCall aliases the shared guard error so callers can match
	// on either package.
	ErrReentrantCall = nativecommon.ErrReentrantCall

	errRateInvariant = errors.New("staking: user emission rate exceeds maximum")
)
