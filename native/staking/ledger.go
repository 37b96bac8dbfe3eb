package staking

import (
	"context"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

// TokenLedger is the fungible token the pool custodies. Mutating calls
// receive the engine's guarded context so that callbacks into the engine can
// be recognised as nested.
type TokenLedger interface {
	Transfer(ctx context.Context, from, to crypto.Address, amount *uint256.Int) error
	TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *uint256.Int) error
	Mint(ctx context.Context, to crypto.Address, amount *uint256.Int) error
	BalanceOf(addr crypto.Address) (*uint256.Int, error)
	TotalSupply() (*uint256.Int, error)
	// Snapshot returns an identifier that RevertToSnapshot rolls back to.
	Snapshot() int
	RevertToSnapshot(id int)
}

// AdministratorGate authorises parameter changes and stray fund claims.
type AdministratorGate interface {
	RequireAuthorized(caller crypto.Address) error
}

// StaticAdministrators authorises a fixed set of addresses.
type StaticAdministrators struct {
	allowed map[[crypto.AddressLength]byte]struct{}
}

// NewStaticAdministrators builds a gate admitting addrs. Zero addresses are
// ignored.
func NewStaticAdministrators(addrs ...crypto.Address) *StaticAdministrators {
	gate := &StaticAdministrators{allowed: make(map[[crypto.AddressLength]byte]struct{}, len(addrs))}
	for _, addr := range addrs {
		if addr.IsZero() {
			continue
		}
		gate.allowed[addr.Key()] = struct{}{}
	}
	return gate
}

// RequireAuthorized implements AdministratorGate.
func (s *StaticAdministrators) RequireAuthorized(caller crypto.Address) error {
	if s == nil || caller.IsZero() {
		return ErrUnauthorized
	}
	if _, ok := s.allowed[caller.Key()]; !ok {
		return ErrUnauthorized
	}
	return nil
}
