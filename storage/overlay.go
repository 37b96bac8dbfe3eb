package storage

import (
	"sort"
	"strings"
	"sync"
)

// Overlay buffers writes on top of a base database. Reads see buffered
// writes first. Nothing reaches the base until Flush, which applies the
// buffer as a single batch; Discard drops it.
type Overlay struct {
	mu      sync.RWMutex
	base    Database
	pending map[string]overlayEntry
}

type overlayEntry struct {
	value   []byte
	deleted bool
}

// NewOverlay wraps base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, pending: make(map[string]overlayEntry)}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[string(key)] = overlayEntry{value: append([]byte(nil), value...)}
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	entry, ok := o.pending[string(key)]
	o.mu.RUnlock()
	if ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.RLock()
	entry, ok := o.pending[string(key)]
	o.mu.RUnlock()
	if ok {
		return !entry.deleted, nil
	}
	return o.base.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[string(key)] = overlayEntry{deleted: true}
	return nil
}

func (o *Overlay) Write(batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, op := range batch.ops {
		if op.delete {
			o.pending[string(op.key)] = overlayEntry{deleted: true}
			continue
		}
		o.pending[string(op.key)] = overlayEntry{value: append([]byte(nil), op.value...)}
	}
	return nil
}

// Iterate visits the merged view of base and buffer in key order.
func (o *Overlay) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	if err := o.base.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = append([]byte(nil), value...)
		return true
	}); err != nil {
		return err
	}
	o.mu.RLock()
	for key, entry := range o.pending {
		if !strings.HasPrefix(key, string(prefix)) {
			continue
		}
		if entry.deleted {
			delete(merged, key)
			continue
		}
		merged[key] = append([]byte(nil), entry.value...)
	}
	o.mu.RUnlock()

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !fn([]byte(key), merged[key]) {
			return nil
		}
	}
	return nil
}

// Pending returns the number of buffered writes.
func (o *Overlay) Pending() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.pending)
}

// Flush applies the buffer to the base in one batch. The buffer is kept
// when the base rejects the batch.
func (o *Overlay) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(o.pending))
	for key := range o.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := NewBatch()
	for _, key := range keys {
		entry := o.pending[key]
		if entry.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), entry.value)
	}
	if err := o.base.Write(batch); err != nil {
		return err
	}
	o.pending = make(map[string]overlayEntry)
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = make(map[string]overlayEntry)
}

// Close discards the buffer. The base is owned by the caller.
func (o *Overlay) Close() {
	o.Discard()
}
