package stressor

import (
	"context"
	"testing"

	"github.com/sharedcode/radargun/logvalue"
	"github.com/sharedcode/radargun/memcache"
)

func newTestOptions(overrides func(*Options)) Options {
	opts := Options{
		NumThreads:      1,
		NumSlaves:       1,
		BucketID:        "b",
		LogValueMaxSize: 3,
	}
	if overrides != nil {
		overrides(&opts)
	}
	return opts.WithDefaults()
}

// TestPrivateGrowThenShift exercises S2: after three PUTs on key 7 the stored
// value is PrivateLogValue(0, [0,1,2]); once the checker has certified every
// opId up to 1, the fourth PUT sheds the certified head ids 0 and 1 instead of
// growing past the cap, yielding PrivateLogValue(0, [2,3]).
func TestPrivateGrowThenShift(t *testing.T) {
	backend := memcache.NewStore(true).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(nil)
	ctx := context.Background()

	logic, err := NewPrivateLogLogic(ctx, 0, 7, 8, opts, backend, keygen, AlwaysAlive{}, stats)
	if err != nil {
		t.Fatalf("new private log logic: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := logic.invokeLogic(ctx, 7, Put); err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
		logic.operationID++
	}

	v, ok, err := logic.checkedGet(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("checkedGet after 3 puts: ok=%v err=%v", ok, err)
	}
	if v.Size() != 3 || v.GetOperationID(0) != 0 || v.GetOperationID(2) != 2 {
		t.Fatalf("expected PrivateLogValue(0,[0,1,2]), got size=%d ops=%v", v.Size(), dumpOps(v))
	}

	if err := backend.Put(ctx, "b", checkerKey(0, 0), encodeLastOperation(lastOperationRecord{OperationID: 1})); err != nil {
		t.Fatalf("inject checker watermark: %v", err)
	}

	if _, err := logic.invokeLogic(ctx, 7, Put); err != nil {
		t.Fatalf("invoke 4: %v", err)
	}

	v, ok, err = logic.checkedGet(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("checkedGet after shift: ok=%v err=%v", ok, err)
	}
	if v.Size() != 2 || v.GetOperationID(0) != 2 || v.GetOperationID(1) != 3 {
		t.Fatalf("expected PrivateLogValue(0,[2,3]), got %v", dumpOps(v))
	}
}

func dumpOps(v logvalue.PrivateLogValue) []int64 {
	out := make([]int64, v.Size())
	for i := range out {
		out[i] = v.GetOperationID(i)
	}
	return out
}

// TestPrivateRemoveMovesToBackup checks that a REMOVE on a present key moves
// its log value into the backup slot and removes the primary.
func TestPrivateRemoveMovesToBackup(t *testing.T) {
	backend := memcache.NewStore(true).NewHandle()
	keygen := DecimalKeyGenerator{}
	stats := NewStatistics(0)
	opts := newTestOptions(nil)
	ctx := context.Background()

	logic, err := NewPrivateLogLogic(ctx, 0, 0, 1, opts, backend, keygen, AlwaysAlive{}, stats)
	if err != nil {
		t.Fatalf("new private log logic: %v", err)
	}

	if _, err := logic.invokeLogic(ctx, 0, Put); err != nil {
		t.Fatalf("put: %v", err)
	}
	logic.operationID++

	progressed, err := logic.invokeLogic(ctx, 0, Remove)
	if err != nil || !progressed {
		t.Fatalf("remove: progressed=%v err=%v", progressed, err)
	}

	primary, err := backend.Get(ctx, "b", keygen.GenerateKey(0))
	if err != nil {
		t.Fatalf("get primary: %v", err)
	}
	if primary != nil {
		t.Fatalf("expected primary key removed, still present: %x", primary)
	}
	backup, err := backend.Get(ctx, "b", keygen.GenerateKey(^int64(0)))
	if err != nil {
		t.Fatalf("get backup: %v", err)
	}
	if backup == nil {
		t.Fatalf("expected backup key to carry the moved log value")
	}
}
