package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"
)

// AddressLength is the byte length of every account address.
const AddressLength = 20

// AddressPrefix defines the human-readable part of an encoded address.
type AddressPrefix string

const (
	// StakePrefix is used for user and administrator accounts.
	StakePrefix AddressPrefix = "stk"
	// ModulePrefix is used for addresses derived for pool custody accounts.
	ModulePrefix AddressPrefix = "stkm"
)

var errAddressLength = errors.New("crypto: address must be 20 bytes long")

// Address represents a 20-byte account address with a specific prefix. The
// prefix only affects rendering; equality is defined over the raw bytes.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps raw bytes into an address. It panics when the byte slice is
// not exactly AddressLength long.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := TryNewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// TryNewAddress is the non-panicking form of NewAddress.
func TryNewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, errAddressLength
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// DeriveModuleAddress derives a deterministic custody address from a label,
// taking the last 20 bytes of its Keccak-256 digest. Labels are NFKC
// normalised so visually identical labels map to the same account.
func DeriveModuleAddress(label string) Address {
	normalized := norm.NFKC.String(strings.TrimSpace(label))
	digest := crypto.Keccak256([]byte("stakevault/module/" + normalized))
	return NewAddress(ModulePrefix, digest[len(digest)-AddressLength:])
}

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Key returns a comparable representation suitable for map keys.
func (a Address) Key() [AddressLength]byte {
	var out [AddressLength]byte
	copy(out[:], a.bytes)
	return out
}

// IsZero reports whether the address is unset or all zero bytes.
func (a Address) IsZero() bool {
	for _, b := range a.bytes {
		if b != 0 {
			return false
		}
	}
	return true
}

// Equal compares two addresses by their raw bytes.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// MarshalText renders the bech32 form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the bech32 form. Empty input yields the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	trimmed := strings.TrimSpace(string(text))
	if trimmed == "" {
		*a = Address{}
		return nil
	}
	decoded, err := DecodeAddress(trimmed)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 encoded address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(strings.TrimSpace(addrStr))
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return TryNewAddress(AddressPrefix(prefix), conv)
}
