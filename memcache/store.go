// Package memcache implements cache.Backend over an in-process sharded map. It
// stores arbitrary bucket/key/value byte strings, supports compare-and-swap, and
// runs transactions through a client-side undo journal.
package memcache

import (
	"bytes"
	"hash/fnv"
	"sync"

	"github.com/sharedcode/radargun/cache"
)

const shardCount = 256

type shard struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// Store is the shared, process-wide key space. Multiple Handle values opened
// against the same Store observe each other's writes immediately; only a Handle's
// own StartTransaction/EndTransaction journal is private to that handle.
type Store struct {
	atomic bool
	shards [shardCount]*shard
}

// NewStore creates a new empty Store. atomic controls whether Handles opened
// against it report SupportsAtomic() == true; set it to false to exercise the
// "backend lacks atomic capability" fatal-load path (see StressorWorker.Run).
func NewStore(atomic bool) *Store {
	s := &Store{atomic: atomic}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string][]byte)}
	}
	return s
}

func (s *Store) shardFor(compositeKey string) *shard {
	h := fnv.New32a()
	h.Write([]byte(compositeKey))
	return s.shards[h.Sum32()%shardCount]
}

func compositeKey(bucket, key string) string {
	return bucket + "\x00" + key
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (s *Store) get(bucket, key string) []byte {
	sh := s.shardFor(compositeKey(bucket, key))
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return cloneBytes(sh.items[compositeKey(bucket, key)])
}

func (s *Store) put(bucket, key string, value []byte) []byte {
	ck := compositeKey(bucket, key)
	sh := s.shardFor(ck)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	prev := sh.items[ck]
	sh.items[ck] = cloneBytes(value)
	return prev
}

func (s *Store) remove(bucket, key string) []byte {
	ck := compositeKey(bucket, key)
	sh := s.shardFor(ck)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	prev := sh.items[ck]
	delete(sh.items, ck)
	return prev
}

func (s *Store) putIfAbsent(bucket, key string, value []byte) []byte {
	ck := compositeKey(bucket, key)
	sh := s.shardFor(ck)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if existing, ok := sh.items[ck]; ok {
		return cloneBytes(existing)
	}
	sh.items[ck] = cloneBytes(value)
	return cloneBytes(value)
}

func (s *Store) replace(bucket, key string, old, new []byte) bool {
	ck := compositeKey(bucket, key)
	sh := s.shardFor(ck)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	current, ok := sh.items[ck]
	if !bytesEqual(current, old, ok) {
		return false
	}
	sh.items[ck] = cloneBytes(new)
	return true
}

func (s *Store) removeExpected(bucket, key string, expected []byte) bool {
	ck := compositeKey(bucket, key)
	sh := s.shardFor(ck)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	current, ok := sh.items[ck]
	if !bytesEqual(current, expected, ok) {
		return false
	}
	delete(sh.items, ck)
	return true
}

func bytesEqual(current, expected []byte, currentExists bool) bool {
	if !currentExists {
		return expected == nil
	}
	return bytes.Equal(current, expected)
}

// NewHandle opens a cache.Backend view of this Store. Each goroutine/worker should
// use its own Handle so that concurrent transactions don't share a journal.
func (s *Store) NewHandle() cache.Backend {
	return &handle{store: s}
}
