package stressor

import (
	"context"
	"testing"

	"github.com/sharedcode/radargun/memcache"
)

// TestRestartDeterminism exercises P3: given the same injected LastOperation
// checkpoint, two independently constructed logics over the same backend
// produce identical (operationId, keyId) sequences.
func TestRestartDeterminism(t *testing.T) {
	store := memcache.NewStore(true)
	backendA := store.NewHandle()

	keygen := DecimalKeyGenerator{}
	opts := newTestOptions(func(o *Options) {
		o.LogValueMaxSize = 100
	})
	ctx := context.Background()

	checkpoint := lastOperationRecord{OperationID: 5, RandSeed: 0xC0FFEE}
	if err := backendA.Put(ctx, "b", lastOperationKey(0), encodeLastOperation(checkpoint)); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	statsA := NewStatistics(0)
	logicA, err := NewPrivateLogLogic(ctx, 0, 0, 50, opts, backendA, keygen, AlwaysAlive{}, statsA)
	if err != nil {
		t.Fatalf("new logic A: %v", err)
	}

	backendB := store.NewHandle()
	statsB := NewStatistics(0)
	logicB, err := NewPrivateLogLogic(ctx, 0, 0, 50, opts, backendB, keygen, AlwaysAlive{}, statsB)
	if err != nil {
		t.Fatalf("new logic B: %v", err)
	}

	if logicA.operationID != 6 || logicB.operationID != 6 {
		t.Fatalf("expected both logics to resume at operationID 6, got A=%d B=%d", logicA.operationID, logicB.operationID)
	}
	if logicA.rand.Seed() != logicB.rand.Seed() {
		t.Fatalf("expected both logics to reseed identically from the checkpoint")
	}

	for i := 0; i < 5; i++ {
		keyA := logicA.nextKeyID(logicA.rand)
		keyB := logicB.nextKeyID(logicB.rand)
		if keyA != keyB {
			t.Fatalf("step %d: key sequences diverged: %d vs %d", i, keyA, keyB)
		}
	}
}
