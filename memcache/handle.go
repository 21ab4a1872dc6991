package memcache

import (
	"context"
	"fmt"

	"github.com/sharedcode/radargun/cache"
)

// undoStep reverses exactly one write performed during the current transaction.
type undoStep struct {
	apply func()
}

type handle struct {
	store *Store
	inTx  bool
	undo  []undoStep
}

func (h *handle) Get(_ context.Context, bucket, key string) ([]byte, error) {
	return h.store.get(bucket, key), nil
}

func (h *handle) Put(_ context.Context, bucket, key string, value []byte) error {
	prev := h.store.put(bucket, key, value)
	if h.inTx {
		existed := prev != nil
		h.recordUndo(bucket, key, prev, existed)
	}
	return nil
}

func (h *handle) Remove(_ context.Context, bucket, key string) ([]byte, error) {
	prev := h.store.remove(bucket, key)
	if h.inTx && prev != nil {
		h.recordUndo(bucket, key, prev, true)
	}
	return prev, nil
}

func (h *handle) recordUndo(bucket, key string, priorValue []byte, existed bool) {
	h.undo = append(h.undo, undoStep{apply: func() {
		if existed {
			h.store.put(bucket, key, priorValue)
		} else {
			h.store.remove(bucket, key)
		}
	}})
}

func (h *handle) StartTransaction(_ context.Context) error {
	if h.inTx {
		return fmt.Errorf("memcache: transaction already started")
	}
	h.inTx = true
	h.undo = h.undo[:0]
	return nil
}

func (h *handle) EndTransaction(_ context.Context, commit bool) error {
	if !h.inTx {
		return fmt.Errorf("memcache: no transaction in progress")
	}
	if !commit {
		// Unwind in reverse order so interleaved moves (k -> ~k -> k) restore cleanly.
		for i := len(h.undo) - 1; i >= 0; i-- {
			h.undo[i].apply()
		}
	}
	h.inTx = false
	h.undo = nil
	return nil
}

func (h *handle) IsRunning(_ context.Context) bool {
	return h.store != nil
}

func (h *handle) SupportsAtomic() bool {
	return h.store.atomic
}

func (h *handle) PutIfAbsent(_ context.Context, bucket, key string, value []byte) ([]byte, error) {
	if !h.store.atomic {
		return nil, cache.ErrNotAtomic
	}
	won := h.store.putIfAbsent(bucket, key, value)
	if h.inTx && bytesIdentical(won, value) {
		h.recordUndo(bucket, key, nil, false)
	}
	return won, nil
}

func (h *handle) Replace(_ context.Context, bucket, key string, oldValue, newValue []byte) (bool, error) {
	if !h.store.atomic {
		return false, cache.ErrNotAtomic
	}
	ok := h.store.replace(bucket, key, oldValue, newValue)
	if ok && h.inTx {
		h.recordUndo(bucket, key, oldValue, true)
	}
	return ok, nil
}

func (h *handle) RemoveExpected(_ context.Context, bucket, key string, expected []byte) (bool, error) {
	if !h.store.atomic {
		return false, cache.ErrNotAtomic
	}
	ok := h.store.removeExpected(bucket, key, expected)
	if ok && h.inTx {
		h.recordUndo(bucket, key, expected, true)
	}
	return ok, nil
}

func bytesIdentical(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func init() {
	cache.RegisterFactory(cache.InMemory, func() cache.Backend {
		return NewStore(true).NewHandle()
	})
}
