package token

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/storage"
)

var (
	balancePrefix   = []byte("token/balance/")
	allowancePrefix = []byte("token/allowance/")
	supplyKey       = []byte("token/supply")
)

type storedBalance struct {
	Prefix  string
	Balance *big.Int
}

type storedAllowance struct {
	OwnerPrefix   string
	SpenderPrefix string
	Amount        *big.Int
}

func balanceKey(key addrKey) []byte {
	return append(append([]byte(nil), balancePrefix...), key[:]...)
}

func allowanceStoreKey(key allowanceKey) []byte {
	out := append([]byte(nil), allowancePrefix...)
	out = append(out, key.owner[:]...)
	return append(out, key.spender[:]...)
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrSupplyOverflow
	}
	return out, nil
}

// Save writes the current balances, allowances and supply to db in one
// batch, including changes not yet committed. Callers that may still revert
// should write into a buffer they can drop.
func (l *Ledger) Save(db storage.Database) error {
	if db == nil {
		return fmt.Errorf("token: database required")
	}
	l.mu.Lock()
	batch := storage.NewBatch()
	var encodeErr error
	for key, bal := range l.balances {
		addr := l.addrs[key]
		encoded, err := rlp.EncodeToBytes(storedBalance{Prefix: string(addr.Prefix()), Balance: bal.ToBig()})
		if err != nil {
			encodeErr = err
			break
		}
		batch.Put(balanceKey(key), encoded)
	}
	if encodeErr == nil {
		for key, amount := range l.allowances {
			record := storedAllowance{
				OwnerPrefix:   string(l.addrs[key.owner].Prefix()),
				SpenderPrefix: string(l.addrs[key.spender].Prefix()),
				Amount:        amount.ToBig(),
			}
			encoded, err := rlp.EncodeToBytes(record)
			if err != nil {
				encodeErr = err
				break
			}
			batch.Put(allowanceStoreKey(key), encoded)
		}
	}
	if encodeErr == nil {
		encoded, err := rlp.EncodeToBytes(l.supply.ToBig())
		if err != nil {
			encodeErr = err
		} else {
			batch.Put(supplyKey, encoded)
		}
	}
	l.mu.Unlock()
	if encodeErr != nil {
		return fmt.Errorf("token: encode ledger: %w", encodeErr)
	}
	return db.Write(batch)
}

// Load replaces the ledger contents with the state persisted in db. Receivers,
// emitter and clock are kept.
func (l *Ledger) Load(db storage.Database) error {
	if db == nil {
		return fmt.Errorf("token: database required")
	}
	addrs := make(map[addrKey]crypto.Address)
	balances := make(map[addrKey]*uint256.Int)
	allowances := make(map[allowanceKey]*uint256.Int)
	var iterErr error
	err := db.Iterate(balancePrefix, func(key, value []byte) bool {
		raw := bytes.TrimPrefix(key, balancePrefix)
		var record storedBalance
		if err := rlp.DecodeBytes(value, &record); err != nil {
			iterErr = err
			return false
		}
		addr, err := crypto.TryNewAddress(crypto.AddressPrefix(record.Prefix), raw)
		if err != nil {
			iterErr = err
			return false
		}
		bal, err := toUint256(record.Balance)
		if err != nil {
			iterErr = err
			return false
		}
		addrs[addr.Key()] = addr
		balances[addr.Key()] = bal
		return true
	})
	if err == nil {
		err = iterErr
	}
	if err != nil {
		return fmt.Errorf("token: load balances: %w", err)
	}
	err = db.Iterate(allowancePrefix, func(key, value []byte) bool {
		raw := bytes.TrimPrefix(key, allowancePrefix)
		if len(raw) != 2*crypto.AddressLength {
			iterErr = fmt.Errorf("malformed allowance key %x", key)
			return false
		}
		var record storedAllowance
		if err := rlp.DecodeBytes(value, &record); err != nil {
			iterErr = err
			return false
		}
		owner, err := crypto.TryNewAddress(crypto.AddressPrefix(record.OwnerPrefix), raw[:crypto.AddressLength])
		if err != nil {
			iterErr = err
			return false
		}
		spender, err := crypto.TryNewAddress(crypto.AddressPrefix(record.SpenderPrefix), raw[crypto.AddressLength:])
		if err != nil {
			iterErr = err
			return false
		}
		amount, err := toUint256(record.Amount)
		if err != nil {
			iterErr = err
			return false
		}
		for _, addr := range []crypto.Address{owner, spender} {
			if _, ok := addrs[addr.Key()]; !ok {
				addrs[addr.Key()] = addr
			}
		}
		allowances[allowanceKey{owner: owner.Key(), spender: spender.Key()}] = amount
		return true
	})
	if err == nil {
		err = iterErr
	}
	if err != nil {
		return fmt.Errorf("token: load allowances: %w", err)
	}
	supply := new(uint256.Int)
	raw, err := db.Get(supplyKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("token: load supply: %w", err)
	default:
		v := new(big.Int)
		if err := rlp.DecodeBytes(raw, v); err != nil {
			return fmt.Errorf("token: decode supply: %w", err)
		}
		if supply, err = toUint256(v); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.addrs = addrs
	l.balances = balances
	l.allowances = allowances
	l.supply = supply
	l.journal = nil
	l.revisions = nil
	l.pending = nil
	return nil
}
