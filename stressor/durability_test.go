package stressor

import (
	"context"
	"testing"

	"github.com/sharedcode/radargun/memcache"
)

// TestDurabilityUnderMove exercises P6: at every stable point between
// operations, every opId issued so far by the worker is present in the
// primary or backup slot's subsequence, even against a non-atomic backend
// (puts and removes are independently visible, never combined into one
// atomic call).
func TestDurabilityUnderMove(t *testing.T) {
	backend := memcache.NewStore(false).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(func(o *Options) {
		o.LogValueMaxSize = 100
	})
	ctx := context.Background()

	logic, err := NewPrivateLogLogic(ctx, 0, 0, 1, opts, backend, keygen, AlwaysAlive{}, stats)
	if err != nil {
		t.Fatalf("new private log logic: %v", err)
	}

	ops := []Operation{Put, Remove, Put, Remove, Put}
	for i, op := range ops {
		if progressed, err := logic.invokeLogic(ctx, 0, op); err != nil || !progressed {
			t.Fatalf("step %d (%s): progressed=%v err=%v", i, op, progressed, err)
		}

		primary, backup := readBothSlots(t, ctx, backend, keygen, 0)
		ids := collectOperationIDs(primary, backup)
		for w := int64(0); w <= int64(i); w++ {
			if !ids[w] {
				t.Fatalf("step %d: opId %d missing from both primary and backup after op %s", i, w, op)
			}
		}

		logic.operationID++
	}
}

func readBothSlots(t *testing.T, ctx context.Context, backend interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}, keygen KeyGenerator, keyID int64) (raw, backupRaw []byte) {
	t.Helper()
	raw, err := backend.Get(ctx, "b", keygen.GenerateKey(keyID))
	if err != nil {
		t.Fatalf("get primary: %v", err)
	}
	backupRaw, err = backend.Get(ctx, "b", keygen.GenerateKey(^keyID))
	if err != nil {
		t.Fatalf("get backup: %v", err)
	}
	return raw, backupRaw
}

func collectOperationIDs(raws ...[]byte) map[int64]bool {
	ids := make(map[int64]bool)
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		v, err := decodePrivateLogValue(raw)
		if err != nil {
			continue
		}
		for i := 0; i < v.Size(); i++ {
			ids[v.GetOperationID(i)] = true
		}
	}
	return ids
}
