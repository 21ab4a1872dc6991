package stressor

import (
	"context"
	"testing"

	"github.com/sharedcode/radargun/memcache"
)

// TestDelayedRemoveCoalescing exercises P5: within one transaction, moving a
// key k -> ~k -> k leaves no delayed remove for either slot.
func TestDelayedRemoveCoalescing(t *testing.T) {
	backend := memcache.NewStore(true).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(func(o *Options) {
		o.TransactionSize = 2
		o.LogValueMaxSize = 100
	})
	ctx := context.Background()

	logic, err := NewPrivateLogLogic(ctx, 0, 0, 1, opts, backend, keygen, AlwaysAlive{}, stats)
	if err != nil {
		t.Fatalf("new private log logic: %v", err)
	}

	// Seed key 0 outside any transaction so the first transactional op can
	// remove it (moving its value to ~0).
	if _, err := logic.invokeLogic(ctx, 0, Put); err != nil {
		t.Fatalf("seed put: %v", err)
	}
	logic.operationID++

	if err := backend.StartTransaction(ctx); err != nil {
		t.Fatalf("start transaction: %v", err)
	}
	logic.inTx = true

	if _, err := logic.invokeLogic(ctx, 0, Remove); err != nil {
		t.Fatalf("remove (k -> ~k): %v", err)
	}
	if len(logic.delayedRemoves) != 1 {
		t.Fatalf("expected one delayed remove queued after k -> ~k, got %d", len(logic.delayedRemoves))
	}

	logic.operationID++
	if _, err := logic.invokeLogic(ctx, 0, Put); err != nil {
		t.Fatalf("put (~k -> k): %v", err)
	}
	if len(logic.delayedRemoves) != 0 {
		t.Fatalf("expected the complementary delayed remove to cancel out, got %d entries", len(logic.delayedRemoves))
	}

	if err := backend.EndTransaction(ctx, true); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
