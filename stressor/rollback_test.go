package stressor

import (
	"context"
	"errors"
	"testing"

	"github.com/sharedcode/radargun/cache"
	"github.com/sharedcode/radargun/memcache"
)

// commitFailingBackend wraps a cache.Backend, failing the Nth EndTransaction
// commit to exercise rollback-and-replay (S4).
type commitFailingBackend struct {
	cache.Backend
	failOnCommit int
	commits      int
}

func (b *commitFailingBackend) EndTransaction(ctx context.Context, commit bool) error {
	if commit {
		b.commits++
		if b.commits == b.failOnCommit {
			b.Backend.EndTransaction(ctx, false)
			return errors.New("injected commit failure")
		}
	}
	return b.Backend.EndTransaction(ctx, commit)
}

// TestTransactionalRollbackReplay exercises S4/P4: a 3-op transaction whose
// commit fails once is replayed from its pre-transaction snapshot and, once
// commit succeeds, leaves the operation id advanced past the transaction.
func TestTransactionalRollbackReplay(t *testing.T) {
	backend := &commitFailingBackend{Backend: memcache.NewStore(true).NewHandle(), failOnCommit: 1}
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(func(o *Options) {
		o.TransactionSize = 3
		o.LogValueMaxSize = 100
	})
	ctx := context.Background()

	logic, err := NewPrivateLogLogic(ctx, 0, 10, 13, opts, backend, keygen, AlwaysAlive{}, stats)
	if err != nil {
		t.Fatalf("new private log logic: %v", err)
	}

	// Each Invoke call advances exactly one op of the 3-op transaction
	// (transactionSize counts invoke() calls, not invokeOn retries); the
	// commit attempt on the third op fails once and is replayed from the
	// transaction snapshot, so driving the logic to operationID==3 takes
	// more than 3 Invoke calls.
	const target = 3
	calls := 0
	for logic.operationID < target && calls < 20 {
		if err := logic.Invoke(ctx); err != nil {
			t.Fatalf("invoke %d: %v", calls, err)
		}
		calls++
	}

	if logic.operationID != target {
		t.Fatalf("expected operationID to reach %d, got %d after %d calls", target, logic.operationID, calls)
	}
	// The successful data commit is followed by the LastOperation checkpoint's
	// own committed transaction.
	if backend.commits != 3 {
		t.Fatalf("expected one failed commit, one successful retry and the checkpoint commit, got %d commit attempts", backend.commits)
	}
	if logic.inTx {
		t.Fatalf("expected the transaction to be closed once the final op commits")
	}
}
