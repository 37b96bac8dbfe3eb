package staking

import (
	"bytes"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

type engineState interface {
	Deposit(addr crypto.Address, slot uint64) (*Position, error)
	PutDeposit(addr crypto.Address, slot uint64, pos *Position) error
	WithdrawalRequest(addr crypto.Address, slot uint64) (uint64, error)
	PutWithdrawalRequest(addr crypto.Address, slot uint64, requestedAt uint64) error
	LastSlot(addr crypto.Address) (uint64, error)
	PutLastSlot(addr crypto.Address, slot uint64) error
	TotalStaked() (*uint256.Int, error)
	PutTotalStaked(total *uint256.Int) error
	// Parameters returns nil without error when the pool is not initialised.
	Parameters() (*Parameters, error)
	PutParameters(params *Parameters) error
}

// batchCommitter is implemented by backends able to apply a changeset in a
// single atomic write.
type batchCommitter interface {
	commitChanges(changes *changeset) error
}

type slotKey struct {
	addr [crypto.AddressLength]byte
	slot uint64
}

func keyOf(addr crypto.Address, slot uint64) slotKey {
	return slotKey{addr: addr.Key(), slot: slot}
}

func lessSlotKey(a, b slotKey) bool {
	if c := bytes.Compare(a.addr[:], b.addr[:]); c != 0 {
		return c < 0
	}
	return a.slot < b.slot
}

// MemoryState is an in-memory engineState used by tests and ephemeral pools.
type MemoryState struct {
	mu        sync.RWMutex
	addrs     map[[crypto.AddressLength]byte]crypto.Address
	deposits  map[slotKey]*Position
	requests  map[slotKey]uint64
	lastSlots map[[crypto.AddressLength]byte]uint64
	total     *uint256.Int
	params    *Parameters
}

// NewMemoryState constructs an empty in-memory ledger.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		addrs:     make(map[[crypto.AddressLength]byte]crypto.Address),
		deposits:  make(map[slotKey]*Position),
		requests:  make(map[slotKey]uint64),
		lastSlots: make(map[[crypto.AddressLength]byte]uint64),
		total:     new(uint256.Int),
	}
}

func (m *MemoryState) remember(addr crypto.Address) {
	if _, ok := m.addrs[addr.Key()]; !ok {
		m.addrs[addr.Key()] = addr
	}
}

func (m *MemoryState) Deposit(addr crypto.Address, slot uint64) (*Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deposits[keyOf(addr, slot)].Clone(), nil
}

func (m *MemoryState) PutDeposit(addr crypto.Address, slot uint64, pos *Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remember(addr)
	m.deposits[keyOf(addr, slot)] = pos.Clone()
	return nil
}

func (m *MemoryState) WithdrawalRequest(addr crypto.Address, slot uint64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[keyOf(addr, slot)], nil
}

func (m *MemoryState) PutWithdrawalRequest(addr crypto.Address, slot uint64, requestedAt uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := keyOf(addr, slot)
	if requestedAt == 0 {
		delete(m.requests, key)
		return nil
	}
	m.remember(addr)
	m.requests[key] = requestedAt
	return nil
}

func (m *MemoryState) LastSlot(addr crypto.Address) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSlots[addr.Key()], nil
}

func (m *MemoryState) PutLastSlot(addr crypto.Address, slot uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remember(addr)
	m.lastSlots[addr.Key()] = slot
	return nil
}

func (m *MemoryState) TotalStaked() (*uint256.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return new(uint256.Int).Set(m.total), nil
}

func (m *MemoryState) PutTotalStaked(total *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = cloneOrZero(total)
	return nil
}

func (m *MemoryState) Parameters() (*Parameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params.Clone(), nil
}

func (m *MemoryState) PutParameters(params *Parameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params.Clone()
	return nil
}

// ForEachDeposit visits every stored position ordered by address and slot.
func (m *MemoryState) ForEachDeposit(fn func(addr crypto.Address, slot uint64, pos *Position) error) error {
	m.mu.RLock()
	keys := make([]slotKey, 0, len(m.deposits))
	for key := range m.deposits {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return lessSlotKey(keys[i], keys[j]) })
	type entry struct {
		addr crypto.Address
		slot uint64
		pos  *Position
	}
	entries := make([]entry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, entry{addr: m.addrs[key.addr], slot: key.slot, pos: m.deposits[key].Clone()})
	}
	m.mu.RUnlock()
	for _, e := range entries {
		if err := fn(e.addr, e.slot, e.pos); err != nil {
			return err
		}
	}
	return nil
}

type depositChange struct {
	addr crypto.Address
	slot uint64
	pos  *Position
}

type requestChange struct {
	addr        crypto.Address
	slot        uint64
	requestedAt uint64
}

type lastSlotChange struct {
	addr crypto.Address
	slot uint64
}

// changeset is the ordered list of writes produced by one operation.
type changeset struct {
	deposits  []depositChange
	requests  []requestChange
	lastSlots []lastSlotChange
	total     *uint256.Int
	params    *Parameters
}

func (c *changeset) empty() bool {
	return len(c.deposits) == 0 && len(c.requests) == 0 && len(c.lastSlots) == 0 && c.total == nil && c.params == nil
}

// stagedState buffers writes on top of a base state. Reads observe staged
// values first. Nothing reaches the base until commit.
type stagedState struct {
	base      engineState
	addrs     map[[crypto.AddressLength]byte]crypto.Address
	deposits  map[slotKey]*Position
	requests  map[slotKey]uint64
	lastSlots map[[crypto.AddressLength]byte]uint64
	total     *uint256.Int
	params    *Parameters
}

func newStagedState(base engineState) *stagedState {
	return &stagedState{
		base:      base,
		addrs:     make(map[[crypto.AddressLength]byte]crypto.Address),
		deposits:  make(map[slotKey]*Position),
		requests:  make(map[slotKey]uint64),
		lastSlots: make(map[[crypto.AddressLength]byte]uint64),
	}
}

func (s *stagedState) remember(addr crypto.Address) {
	s.addrs[addr.Key()] = addr
}

func (s *stagedState) Deposit(addr crypto.Address, slot uint64) (*Position, error) {
	if pos, ok := s.deposits[keyOf(addr, slot)]; ok {
		return pos.Clone(), nil
	}
	pos, err := s.base.Deposit(addr, slot)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

func (s *stagedState) PutDeposit(addr crypto.Address, slot uint64, pos *Position) error {
	s.remember(addr)
	s.deposits[keyOf(addr, slot)] = pos.Clone()
	return nil
}

func (s *stagedState) WithdrawalRequest(addr crypto.Address, slot uint64) (uint64, error) {
	if at, ok := s.requests[keyOf(addr, slot)]; ok {
		return at, nil
	}
	return s.base.WithdrawalRequest(addr, slot)
}

func (s *stagedState) PutWithdrawalRequest(addr crypto.Address, slot uint64, requestedAt uint64) error {
	s.remember(addr)
	s.requests[keyOf(addr, slot)] = requestedAt
	return nil
}

func (s *stagedState) LastSlot(addr crypto.Address) (uint64, error) {
	if slot, ok := s.lastSlots[addr.Key()]; ok {
		return slot, nil
	}
	return s.base.LastSlot(addr)
}

func (s *stagedState) PutLastSlot(addr crypto.Address, slot uint64) error {
	s.remember(addr)
	s.lastSlots[addr.Key()] = slot
	return nil
}

func (s *stagedState) TotalStaked() (*uint256.Int, error) {
	if s.total != nil {
		return new(uint256.Int).Set(s.total), nil
	}
	total, err := s.base.TotalStaked()
	if err != nil {
		return nil, err
	}
	return cloneOrZero(total), nil
}

func (s *stagedState) PutTotalStaked(total *uint256.Int) error {
	s.total = cloneOrZero(total)
	return nil
}

func (s *stagedState) Parameters() (*Parameters, error) {
	if s.params != nil {
		return s.params.Clone(), nil
	}
	return s.base.Parameters()
}

func (s *stagedState) PutParameters(params *Parameters) error {
	s.params = params.Clone()
	return nil
}

// changes flattens the staged writes into a deterministic order.
func (s *stagedState) changes() *changeset {
	out := &changeset{total: s.total, params: s.params}
	depositKeys := make([]slotKey, 0, len(s.deposits))
	for key := range s.deposits {
		depositKeys = append(depositKeys, key)
	}
	sort.Slice(depositKeys, func(i, j int) bool { return lessSlotKey(depositKeys[i], depositKeys[j]) })
	for _, key := range depositKeys {
		out.deposits = append(out.deposits, depositChange{addr: s.addrs[key.addr], slot: key.slot, pos: s.deposits[key]})
	}
	requestKeys := make([]slotKey, 0, len(s.requests))
	for key := range s.requests {
		requestKeys = append(requestKeys, key)
	}
	sort.Slice(requestKeys, func(i, j int) bool { return lessSlotKey(requestKeys[i], requestKeys[j]) })
	for _, key := range requestKeys {
		out.requests = append(out.requests, requestChange{addr: s.addrs[key.addr], slot: key.slot, requestedAt: s.requests[key]})
	}
	addrKeys := make([][crypto.AddressLength]byte, 0, len(s.lastSlots))
	for key := range s.lastSlots {
		addrKeys = append(addrKeys, key)
	}
	sort.Slice(addrKeys, func(i, j int) bool { return bytes.Compare(addrKeys[i][:], addrKeys[j][:]) < 0 })
	for _, key := range addrKeys {
		out.lastSlots = append(out.lastSlots, lastSlotChange{addr: s.addrs[key], slot: s.lastSlots[key]})
	}
	return out
}

// commit writes the staged changes to the base state.
func (s *stagedState) commit() error {
	changes := s.changes()
	if changes.empty() {
		return nil
	}
	if committer, ok := s.base.(batchCommitter); ok {
		return committer.commitChanges(changes)
	}
	for _, c := range changes.deposits {
		if err := s.base.PutDeposit(c.addr, c.slot, c.pos); err != nil {
			return err
		}
	}
	for _, c := range changes.requests {
		if err := s.base.PutWithdrawalRequest(c.addr, c.slot, c.requestedAt); err != nil {
			return err
		}
	}
	for _, c := range changes.lastSlots {
		if err := s.base.PutLastSlot(c.addr, c.slot); err != nil {
			return err
		}
	}
	if changes.total != nil {
		if err := s.base.PutTotalStaked(changes.total); err != nil {
			return err
		}
	}
	if changes.params != nil {
		if err := s.base.PutParameters(changes.params); err != nil {
			return err
		}
	}
	return nil
}
