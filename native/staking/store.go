package staking

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"stakevault/crypto"
	"stakevault/native/params"
	"stakevault/storage"
)

var (
	depositPrefix  = []byte("staking/deposit/")
	requestPrefix  = []byte("staking/request/")
	lastSlotPrefix = []byte("staking/last/")
	totalKey       = []byte("staking/total")
	paramPrefix    = []byte("staking/param/")
)

type storedDeposit struct {
	Balance     *big.Int
	DepositedAt uint64
}

// KVState persists the deposit ledger in a key-value database. Records are
// RLP encoded; parameters are stored as JSON through the params store.
type KVState struct {
	db storage.Database
}

// NewKVState wraps db.
func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

func slotSuffix(addr crypto.Address, slot uint64) []byte {
	out := make([]byte, 0, crypto.AddressLength+8)
	key := addr.Key()
	out = append(out, key[:]...)
	return binary.BigEndian.AppendUint64(out, slot)
}

func depositKey(addr crypto.Address, slot uint64) []byte {
	return append(append([]byte(nil), depositPrefix...), slotSuffix(addr, slot)...)
}

func requestKey(addr crypto.Address, slot uint64) []byte {
	return append(append([]byte(nil), requestPrefix...), slotSuffix(addr, slot)...)
}

func lastSlotKey(addr crypto.Address) []byte {
	key := addr.Key()
	return append(append([]byte(nil), lastSlotPrefix...), key[:]...)
}

func paramKey(name string) []byte {
	return append(append([]byte(nil), paramPrefix...), name...)
}

func (s *KVState) get(key []byte) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrNilState
	}
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func encodeDeposit(pos *Position) ([]byte, error) {
	record := storedDeposit{Balance: cloneOrZero(pos.Balance).ToBig()}
	if pos != nil {
		record.DepositedAt = pos.DepositedAt
	}
	return rlp.EncodeToBytes(record)
}

func decodeDeposit(raw []byte) (*Position, error) {
	var record storedDeposit
	if err := rlp.DecodeBytes(raw, &record); err != nil {
		return nil, fmt.Errorf("staking: decode deposit: %w", err)
	}
	balance := new(uint256.Int)
	if record.Balance != nil {
		if overflow := balance.SetFromBig(record.Balance); overflow {
			return nil, fmt.Errorf("staking: decode deposit: %w", errArithmeticOverflow)
		}
	}
	return &Position{Balance: balance, DepositedAt: record.DepositedAt}, nil
}

func encodeUint(v uint64) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

func decodeUint(raw []byte) (uint64, error) {
	var v uint64
	if err := rlp.DecodeBytes(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func encodeAmount(v *uint256.Int) ([]byte, error) {
	return rlp.EncodeToBytes(cloneOrZero(v).ToBig())
}

func decodeAmount(raw []byte) (*uint256.Int, error) {
	v := new(big.Int)
	if err := rlp.DecodeBytes(raw, v); err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errArithmeticOverflow
	}
	return out, nil
}

func (s *KVState) Deposit(addr crypto.Address, slot uint64) (*Position, error) {
	raw, ok, err := s.get(depositKey(addr, slot))
	if err != nil || !ok {
		return &Position{Balance: new(uint256.Int)}, err
	}
	return decodeDeposit(raw)
}

func (s *KVState) PutDeposit(addr crypto.Address, slot uint64, pos *Position) error {
	encoded, err := encodeDeposit(pos)
	if err != nil {
		return err
	}
	return s.db.Put(depositKey(addr, slot), encoded)
}

func (s *KVState) WithdrawalRequest(addr crypto.Address, slot uint64) (uint64, error) {
	raw, ok, err := s.get(requestKey(addr, slot))
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint(raw)
}

func (s *KVState) PutWithdrawalRequest(addr crypto.Address, slot uint64, requestedAt uint64) error {
	if requestedAt == 0 {
		return s.db.Delete(requestKey(addr, slot))
	}
	encoded, err := encodeUint(requestedAt)
	if err != nil {
		return err
	}
	return s.db.Put(requestKey(addr, slot), encoded)
}

func (s *KVState) LastSlot(addr crypto.Address) (uint64, error) {
	raw, ok, err := s.get(lastSlotKey(addr))
	if err != nil || !ok {
		return 0, err
	}
	return decodeUint(raw)
}

func (s *KVState) PutLastSlot(addr crypto.Address, slot uint64) error {
	encoded, err := encodeUint(slot)
	if err != nil {
		return err
	}
	return s.db.Put(lastSlotKey(addr), encoded)
}

func (s *KVState) TotalStaked() (*uint256.Int, error) {
	raw, ok, err := s.get(totalKey)
	if err != nil || !ok {
		return new(uint256.Int), err
	}
	return decodeAmount(raw)
}

func (s *KVState) PutTotalStaked(total *uint256.Int) error {
	encoded, err := encodeAmount(total)
	if err != nil {
		return err
	}
	return s.db.Put(totalKey, encoded)
}

// ParamStoreSet implements params.StoreState.
func (s *KVState) ParamStoreSet(name string, value []byte) error {
	if s == nil || s.db == nil {
		return ErrNilState
	}
	return s.db.Put(paramKey(name), value)
}

// ParamStoreGet implements params.StoreState.
func (s *KVState) ParamStoreGet(name string) ([]byte, bool, error) {
	return s.get(paramKey(name))
}

func (s *KVState) Parameters() (*Parameters, error) {
	record, ok, err := params.NewStore(s).Staking()
	if err != nil || !ok {
		return nil, err
	}
	return parametersFromRecord(record)
}

func (s *KVState) PutParameters(p *Parameters) error {
	return params.NewStore(s).SetStaking(parametersToRecord(p))
}

// ForEachDeposit visits every stored position in key order. Addresses are
// rendered with the account prefix.
func (s *KVState) ForEachDeposit(fn func(addr crypto.Address, slot uint64, pos *Position) error) error {
	if s == nil || s.db == nil {
		return ErrNilState
	}
	var callbackErr error
	err := s.db.Iterate(depositPrefix, func(key, value []byte) bool {
		suffix := key[len(depositPrefix):]
		if len(suffix) != crypto.AddressLength+8 {
			callbackErr = fmt.Errorf("staking: malformed deposit key %x", key)
			return false
		}
		pos, err := decodeDeposit(value)
		if err != nil {
			callbackErr = err
			return false
		}
		addr := crypto.NewAddress(crypto.StakePrefix, suffix[:crypto.AddressLength])
		slot := binary.BigEndian.Uint64(suffix[crypto.AddressLength:])
		if err := fn(addr, slot, pos); err != nil {
			callbackErr = err
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return callbackErr
}

func (s *KVState) commitChanges(changes *changeset) error {
	if s == nil || s.db == nil {
		return ErrNilState
	}
	batch := storage.NewBatch()
	for _, c := range changes.deposits {
		encoded, err := encodeDeposit(c.pos)
		if err != nil {
			return err
		}
		batch.Put(depositKey(c.addr, c.slot), encoded)
	}
	for _, c := range changes.requests {
		if c.requestedAt == 0 {
			batch.Delete(requestKey(c.addr, c.slot))
			continue
		}
		encoded, err := encodeUint(c.requestedAt)
		if err != nil {
			return err
		}
		batch.Put(requestKey(c.addr, c.slot), encoded)
	}
	for _, c := range changes.lastSlots {
		encoded, err := encodeUint(c.slot)
		if err != nil {
			return err
		}
		batch.Put(lastSlotKey(c.addr), encoded)
	}
	if changes.total != nil {
		encoded, err := encodeAmount(changes.total)
		if err != nil {
			return err
		}
		batch.Put(totalKey, encoded)
	}
	if changes.params != nil {
		encoded, err := params.Encode(parametersToRecord(changes.params))
		if err != nil {
			return err
		}
		batch.Put(paramKey(params.KeyStaking), encoded)
	}
	return s.db.Write(batch)
}

func delayedAmountRecord(d Delayed[uint256.Int]) params.Delayed {
	return params.Delayed{Old: d.Old.Dec(), New: d.New.Dec(), ChangedAt: d.ChangedAt}
}

func delayedUintRecord(d Delayed[uint64]) params.Delayed {
	return params.Delayed{
		Old:       strconv.FormatUint(d.Old, 10),
		New:       strconv.FormatUint(d.New, 10),
		ChangedAt: d.ChangedAt,
	}
}

func sigmoidRecord(p SigmoidParams) params.Sigmoid {
	return params.Sigmoid{A: p.A.Dec(), B: p.B, C: p.C.Dec()}
}

func parametersToRecord(p *Parameters) params.Staking {
	sig := p.Sigmoid.params
	return params.Staking{
		Fee:                      delayedAmountRecord(p.Fee),
		WithdrawalLockDuration:   delayedUintRecord(p.WithdrawalLockDuration),
		WithdrawalUnlockDuration: delayedUintRecord(p.WithdrawalUnlockDuration),
		TotalSupplyFactor:        delayedAmountRecord(p.TotalSupplyFactor),
		LiquidityRewardAddress: params.Delayed{
			Old:       p.LiquidityRewardAddress.Old.String(),
			New:       p.LiquidityRewardAddress.New.String(),
			ChangedAt: p.LiquidityRewardAddress.ChangedAt,
		},
		Sigmoid: params.DelayedSigmoid{
			Old:       sigmoidRecord(sig.Old),
			New:       sigmoidRecord(sig.New),
			ChangedAt: sig.ChangedAt,
		},
	}
}

func parseAmount(name, value string) (uint256.Int, error) {
	var out uint256.Int
	if value == "" {
		return out, nil
	}
	if err := out.SetFromDecimal(value); err != nil {
		return out, fmt.Errorf("staking: decode %s: %w", name, err)
	}
	return out, nil
}

func delayedAmountFromRecord(name string, r params.Delayed) (Delayed[uint256.Int], error) {
	old, err := parseAmount(name, r.Old)
	if err != nil {
		return Delayed[uint256.Int]{}, err
	}
	next, err := parseAmount(name, r.New)
	if err != nil {
		return Delayed[uint256.Int]{}, err
	}
	return Delayed[uint256.Int]{Old: old, New: next, ChangedAt: r.ChangedAt}, nil
}

func delayedUintFromRecord(name string, r params.Delayed) (Delayed[uint64], error) {
	old, err := strconv.ParseUint(r.Old, 10, 64)
	if err != nil {
		return Delayed[uint64]{}, fmt.Errorf("staking: decode %s: %w", name, err)
	}
	next, err := strconv.ParseUint(r.New, 10, 64)
	if err != nil {
		return Delayed[uint64]{}, fmt.Errorf("staking: decode %s: %w", name, err)
	}
	return Delayed[uint64]{Old: old, New: next, ChangedAt: r.ChangedAt}, nil
}

func sigmoidFromRecord(r params.Sigmoid) (SigmoidParams, error) {
	var p SigmoidParams
	a, err := parseAmount("sigmoid a", r.A)
	if err != nil {
		return p, err
	}
	c, err := parseAmount("sigmoid c", r.C)
	if err != nil {
		return p, err
	}
	p.A, p.B, p.C = a, r.B, c
	return p, nil
}

func parametersFromRecord(r params.Staking) (*Parameters, error) {
	fee, err := delayedAmountFromRecord(ParamFee, r.Fee)
	if err != nil {
		return nil, err
	}
	lock, err := delayedUintFromRecord(ParamWithdrawalLockDuration, r.WithdrawalLockDuration)
	if err != nil {
		return nil, err
	}
	unlock, err := delayedUintFromRecord(ParamWithdrawalUnlockDuration, r.WithdrawalUnlockDuration)
	if err != nil {
		return nil, err
	}
	factor, err := delayedAmountFromRecord(ParamTotalSupplyFactor, r.TotalSupplyFactor)
	if err != nil {
		return nil, err
	}
	var oldAddr, newAddr crypto.Address
	if err := oldAddr.UnmarshalText([]byte(r.LiquidityRewardAddress.Old)); err != nil {
		return nil, fmt.Errorf("staking: decode %s: %w", ParamLiquidityRewardAddress, err)
	}
	if err := newAddr.UnmarshalText([]byte(r.LiquidityRewardAddress.New)); err != nil {
		return nil, fmt.Errorf("staking: decode %s: %w", ParamLiquidityRewardAddress, err)
	}
	oldSig, err := sigmoidFromRecord(r.Sigmoid.Old)
	if err != nil {
		return nil, err
	}
	newSig, err := sigmoidFromRecord(r.Sigmoid.New)
	if err != nil {
		return nil, err
	}
	return &Parameters{
		Fee:                      fee,
		WithdrawalLockDuration:   lock,
		WithdrawalUnlockDuration: unlock,
		TotalSupplyFactor:        factor,
		LiquidityRewardAddress: Delayed[crypto.Address]{
			Old: oldAddr, New: newAddr, ChangedAt: r.LiquidityRewardAddress.ChangedAt,
		},
		Sigmoid: &Sigmoid{params: Delayed[SigmoidParams]{
			Old: oldSig, New: newSig, ChangedAt: r.Sigmoid.ChangedAt,
		}},
	}, nil
}
