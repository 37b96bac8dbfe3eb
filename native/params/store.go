package params

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StoreState captures the subset of backend capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Delayed is the persisted form of a delayed-update tunable. Values are
// rendered as strings so 256-bit amounts and addresses survive JSON intact.
type Delayed struct {
	Old       string `json:"old"`
	New       string `json:"new"`
	ChangedAt uint64 `json:"changedAt,omitempty"`
}

// Sigmoid is the persisted form of the rate curve parameters.
type Sigmoid struct {
	A string `json:"a"`
	B int64  `json:"b"`
	C string `json:"c"`
}

// DelayedSigmoid pairs curve parameters with their update timestamp.
type DelayedSigmoid struct {
	Old       Sigmoid `json:"old"`
	New       Sigmoid `json:"new"`
	ChangedAt uint64  `json:"changedAt,omitempty"`
}

// Staking is the full persisted parameter set of a pool.
type Staking struct {
	Fee                      Delayed        `json:"fee"`
	WithdrawalLockDuration   Delayed        `json:"withdrawalLockDuration"`
	WithdrawalUnlockDuration Delayed        `json:"withdrawalUnlockDuration"`
	TotalSupplyFactor        Delayed        `json:"totalSupplyFactor"`
	LiquidityRewardAddress   Delayed        `json:"liquidityRewardAddress"`
	Sigmoid                  DelayedSigmoid `json:"sigmoid"`
}

// Pool records the identity of the pool a data directory belongs to.
type Pool struct {
	Label   string `json:"label"`
	Address string `json:"address"`
}

// Store provides typed accessors for pool parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// Encode marshals a staking record without persisting it. Backends that
// write parameters as part of a larger batch use it directly.
func Encode(staking Staking) ([]byte, error) {
	encoded, err := json.Marshal(staking)
	if err != nil {
		return nil, fmt.Errorf("params: encode staking: %w", err)
	}
	return encoded, nil
}

// Decode is the inverse of Encode. ok is false when raw is empty.
func Decode(raw []byte) (Staking, bool, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Staking{}, false, nil
	}
	var staking Staking
	if err := json.Unmarshal(raw, &staking); err != nil {
		return Staking{}, false, fmt.Errorf("params: decode staking: %w", err)
	}
	return staking, true, nil
}

// SetStaking persists the staking parameters under the canonical key.
func (s *Store) SetStaking(staking Staking) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := Encode(staking)
	if err != nil {
		return err
	}
	return state.ParamStoreSet(KeyStaking, encoded)
}

// Staking loads the persisted staking parameters. ok is false when the pool
// has not been initialised.
func (s *Store) Staking() (Staking, bool, error) {
	state, err := s.withState()
	if err != nil {
		return Staking{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(KeyStaking)
	if err != nil {
		return Staking{}, false, err
	}
	if !ok {
		return Staking{}, false, nil
	}
	return Decode(raw)
}

// SetPool records the pool identity.
func (s *Store) SetPool(pool Pool) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("params: encode pool: %w", err)
	}
	return state.ParamStoreSet(KeyPool, encoded)
}

// Pool loads the recorded pool identity. When unset, a zero value is
// returned.
func (s *Store) Pool() (Pool, error) {
	state, err := s.withState()
	if err != nil {
		return Pool{}, err
	}
	raw, ok, err := state.ParamStoreGet(KeyPool)
	if err != nil {
		return Pool{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return Pool{}, nil
	}
	var pool Pool
	if err := json.Unmarshal(raw, &pool); err != nil {
		return Pool{}, fmt.Errorf("params: decode pool: %w", err)
	}
	return pool, nil
}
