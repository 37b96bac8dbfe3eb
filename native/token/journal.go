package token

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"stakevault/core/events"
)

type revision struct {
	id           int
	journalIndex int
}

type journalEntry interface {
	undo(*Ledger)
}

type (
	balanceChange struct {
		account addrKey
		prev    *uint256.Int
		existed bool
	}
	allowanceChange struct {
		key     allowanceKey
		prev    *uint256.Int
		existed bool
	}
	supplyChange struct {
		prev *uint256.Int
	}
	eventAdded struct{}
)

func (c balanceChange) undo(l *Ledger) {
	if !c.existed {
		delete(l.balances, c.account)
		return
	}
	l.balances[c.account] = c.prev
}

func (c allowanceChange) undo(l *Ledger) {
	if !c.existed {
		delete(l.allowances, c.key)
		return
	}
	l.allowances[c.key] = c.prev
}

func (c supplyChange) undo(l *Ledger) {
	l.supply = c.prev
}

func (eventAdded) undo(l *Ledger) {
	if n := len(l.pending); n > 0 {
		l.pending = l.pending[:n-1]
	}
}

// Snapshot returns an identifier for the current revision of the ledger.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextRevisionID
	l.nextRevisionID++
	l.revisions = append(l.revisions, revision{id: id, journalIndex: len(l.journal)})
	return id
}

// RevertToSnapshot reverts all changes made since the given revision.
func (l *Ledger) RevertToSnapshot(revid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := sort.Search(len(l.revisions), func(i int) bool {
		return l.revisions[i].id >= revid
	})
	if idx == len(l.revisions) || l.revisions[idx].id != revid {
		panic(fmt.Errorf("token: revision id %v cannot be reverted", revid))
	}
	snapshot := l.revisions[idx].journalIndex
	for i := len(l.journal) - 1; i >= snapshot; i-- {
		l.journal[i].undo(l)
	}
	l.journal = l.journal[:snapshot]
	l.revisions = l.revisions[:idx]
}

// Commit drops the journal and forwards pending events to the emitter. After
// Commit no earlier snapshot can be reverted.
func (l *Ledger) Commit() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.journal = nil
	l.revisions = nil
	emitter := l.emitter
	l.mu.Unlock()
	for _, evt := range pending {
		emitter.Emit(evt)
	}
}

// PendingEvents returns the events Commit would emit, in order.
func (l *Ledger) PendingEvents() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Event(nil), l.pending...)
}

func (l *Ledger) record(evt events.Event) {
	l.pending = append(l.pending, evt)
	l.journal = append(l.journal, eventAdded{})
}
