package stressor

import (
	"context"
	"testing"

	"github.com/sharedcode/radargun/memcache"
)

// TestLegacyWrap exercises S1: a range [10,13) under an all-PUT mix, wraps
// the cursor back to the start after three invocations, and every key holds
// a PUT-sized payload.
func TestLegacyWrap(t *testing.T) {
	backend := memcache.NewStore(true).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := Options{
		EntrySize:    8,
		BucketID:     "b",
		OperationMix: OperationMix{Put: 1.0},
	}.WithDefaults()

	logic := NewLegacyLogic(10, 13, opts, backend, keygen, stats)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := logic.Invoke(ctx); err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
	}

	if logic.cursor != 10 {
		t.Fatalf("expected cursor wrapped to 10 after a full pass, got %d", logic.cursor)
	}

	// The fourth invocation operates on key 10 again, having wrapped.
	if err := logic.Invoke(ctx); err != nil {
		t.Fatalf("invoke 4: %v", err)
	}
	if logic.cursor != 11 {
		t.Fatalf("expected cursor at 11 after the wrapped operation, got %d", logic.cursor)
	}

	for id := int64(10); id < 13; id++ {
		v, err := backend.Get(ctx, "b", keygen.GenerateKey(id))
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if len(v) != 8 {
			t.Fatalf("key %d: expected an 8-byte payload, got %d bytes", id, len(v))
		}
	}
}

// TestLegacyTransactionalCommit checks that a completed fixed-size
// transaction leaves the backend transaction closed and values durable.
func TestLegacyTransactionalCommit(t *testing.T) {
	backend := memcache.NewStore(true).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := Options{
		EntrySize:       4,
		BucketID:        "b",
		TransactionSize: 2,
		OperationMix:    OperationMix{Put: 1.0},
	}.WithDefaults()

	logic := NewLegacyLogic(0, 5, opts, backend, keygen, stats)
	ctx := context.Background()

	if err := logic.Invoke(ctx); err != nil {
		t.Fatalf("invoke 1: %v", err)
	}
	if !logic.inTx {
		t.Fatalf("expected transaction to remain open after first of two ops")
	}
	if err := logic.Invoke(ctx); err != nil {
		t.Fatalf("invoke 2: %v", err)
	}
	if logic.inTx {
		t.Fatalf("expected transaction to be closed after transactionSize ops")
	}
}
