package stressor

import (
	"context"
	"testing"

	"github.com/sharedcode/radargun/memcache"
)

// TestLoadPutIfAbsentRequiresAtomicBackend exercises S6: a worker configured
// with loadWithPutIfAbsent against a backend that lacks atomic capability
// fails fatally during the load phase, before any entry is written and
// before any op is issued.
func TestLoadPutIfAbsentRequiresAtomicBackend(t *testing.T) {
	backend := memcache.NewStore(false).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(func(o *Options) {
		o.LoadWithPutIfAbsent = true
	})
	ctx := context.Background()

	logic := NewLegacyLogic(0, 100, opts, backend, keygen, stats)
	worker := NewStressorWorker(0, opts, backend, keygen, stats, logic, KeyRange{Start: 0, End: 100}, nil)

	err := worker.Run(ctx)
	if err == nil {
		t.Fatalf("expected a fatal error, got nil")
	}
	if !IsConsistencyViolation(err) {
		t.Fatalf("expected a consistency violation, got %v", err)
	}
	if worker.Status() != StatusFailed {
		t.Fatalf("expected status %v, got %v", StatusFailed, worker.Status())
	}
	if worker.IsLoaded() {
		t.Fatalf("expected the worker to not be marked loaded after a failed load")
	}

	for id := int64(0); id < 100; id++ {
		raw, err := backend.Get(ctx, "b", keygen.GenerateKey(id))
		if err != nil {
			t.Fatalf("get key %d: %v", id, err)
		}
		if raw != nil {
			t.Fatalf("expected key %d to be absent, load should have failed before any write", id)
		}
	}
}
