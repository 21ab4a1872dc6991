package stressor

import (
	"context"
	"testing"

	"github.com/sharedcode/radargun/logvalue"
	"github.com/sharedcode/radargun/memcache"
)

// TestSharedCASRace exercises S3: two workers both read prev=null for key 5
// and both attempt putIfAbsent. Exactly one wins; the loser re-reads the
// fresh value and wins on a subsequent replace.
func TestSharedCASRace(t *testing.T) {
	backend := memcache.NewStore(true).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(func(o *Options) {
		o.NumThreads = 2
		o.NumEntries = 10
	})
	ctx := context.Background()

	t0, err := NewSharedLogLogic(ctx, 0, opts, backend, keygen, AlwaysAlive{}, stats)
	if err != nil {
		t.Fatalf("new shared logic 0: %v", err)
	}
	t1, err := NewSharedLogLogic(ctx, 1, opts, backend, keygen, AlwaysAlive{}, stats)
	if err != nil {
		t.Fatalf("new shared logic 1: %v", err)
	}

	// Both threads observe prev=null simultaneously, before either writes.
	next0, err := nextRawFor(t0)
	if err != nil {
		t.Fatalf("t0 nextValue: %v", err)
	}
	next1, err := nextRawFor(t1)
	if err != nil {
		t.Fatalf("t1 nextValue: %v", err)
	}

	key := keygen.GenerateKey(5)
	won0, err := casWrite(ctx, backend, "b", key, nil, false, next0)
	if err != nil {
		t.Fatalf("t0 casWrite: %v", err)
	}
	if !won0 {
		t.Fatalf("expected t0 to win the empty-key race")
	}

	won1, err := casWrite(ctx, backend, "b", key, nil, false, next1)
	if err != nil {
		t.Fatalf("t1 casWrite: %v", err)
	}
	if won1 {
		t.Fatalf("expected t1's stale-prev attempt to lose the race")
	}

	// t1 retries: re-reads the fresh value and replaces successfully.
	progressed1, err := t1.invokeLogic(ctx, 5, Put)
	if err != nil {
		t.Fatalf("t1 retry: %v", err)
	}
	if !progressed1 {
		t.Fatalf("expected t1's retry, reading the fresh value, to win via replace")
	}

	v, _, ok, err := t0.checkedGet(ctx, 5)
	if err != nil || !ok {
		t.Fatalf("checkedGet: ok=%v err=%v", ok, err)
	}
	if v.PerThread(0) == nil || v.PerThread(1) == nil {
		t.Fatalf("expected both threads' subsequences present, got %+v", v)
	}
}

// nextRawFor computes the canonical encoding of nextValue(null, null) for s,
// simulating a read taken before any writer has touched the key.
func nextRawFor(s *SharedLogLogic) ([]byte, error) {
	var zero logvalue.SharedLogValue
	next, ok, err := s.nextValue(context.Background(), zero, false, zero, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return marshalJSON(next)
}

// TestSharedRequiresAtomicBackend checks that constructing a SharedLogLogic
// over a non-atomic backend fails fast (mirrors S6's fail-fast discipline).
func TestSharedRequiresAtomicBackend(t *testing.T) {
	backend := memcache.NewStore(false).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(nil)
	ctx := context.Background()

	if _, err := NewSharedLogLogic(ctx, 0, opts, backend, keygen, AlwaysAlive{}, stats); err == nil {
		t.Fatalf("expected a consistency violation constructing SharedLogLogic over a non-atomic backend")
	}
}
