package stressor

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/sharedcode/radargun/cache"
	"github.com/sharedcode/radargun/memcache"
)

// failingPutBackend wraps a cache.Backend, returning a configured error from
// every Put call.
type failingPutBackend struct {
	cache.Backend
	err error
}

func (b *failingPutBackend) Put(ctx context.Context, bucket, key string, value []byte) error {
	return b.err
}

// TestFailoverQualifiedFaultIsFatal exercises backend storage faults (disk
// full, read-only filesystem, media I/O error): invokeOn must not retry them
// like an ordinary transient fault, and must leave no transaction open.
func TestFailoverQualifiedFaultIsFatal(t *testing.T) {
	backend := &failingPutBackend{
		Backend: memcache.NewStore(true).NewHandle(),
		err:     fmt.Errorf("writeback failed: %w", syscall.ENOSPC),
	}
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(func(o *Options) {
		o.TransactionSize = 0
	})
	ctx := context.Background()

	logic, err := NewPrivateLogLogic(ctx, 0, 0, 1, opts, backend, keygen, AlwaysAlive{}, stats)
	if err != nil {
		t.Fatalf("new private log logic: %v", err)
	}

	err = logic.Invoke(ctx)
	if err == nil {
		t.Fatalf("expected Invoke to surface the backend storage fault")
	}
	if !errors.Is(err, syscall.ENOSPC) {
		t.Fatalf("expected the original errno to remain reachable via errors.Is, got %v", err)
	}
	if logic.inTx {
		t.Fatalf("expected no transaction left open after a failover-qualified fault")
	}
}
