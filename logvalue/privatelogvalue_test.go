package logvalue

import "testing"

func TestPrivateLogValueWith(t *testing.T) {
	v := NewPrivateLogValue(7, 100)
	for _, newOp := range []int64{101, 102, 103} {
		next := v.With(newOp)
		if next.Size() != v.Size()+1 {
			t.Fatalf("size: got %d, want %d", next.Size(), v.Size()+1)
		}
		if got := next.GetOperationID(next.Size() - 1); got != newOp {
			t.Fatalf("tail opId: got %d, want %d", got, newOp)
		}
		v = next
	}
}

func TestPrivateLogValueShift(t *testing.T) {
	v := PrivateLogValue{ThreadID: 3, OperationIDs: []int64{10, 11, 12, 13}}
	for k := 1; k <= v.Size(); k++ {
		newOp := int64(1000 + k)
		next := v.Shift(k, newOp)
		if want := v.Size() - k + 1; next.Size() != want {
			t.Fatalf("k=%d size: got %d, want %d", k, next.Size(), want)
		}
		wantTail := append(append([]int64{}, v.OperationIDs[k:]...), newOp)
		got := next.OperationIDs
		if len(got) != len(wantTail) {
			t.Fatalf("k=%d tail len: got %v, want %v", k, got, wantTail)
		}
		for i := range got {
			if got[i] != wantTail[i] {
				t.Fatalf("k=%d tail: got %v, want %v", k, got, wantTail)
			}
		}
	}
}

func TestPrivateLogValueShiftOutOfRangePanics(t *testing.T) {
	v := PrivateLogValue{ThreadID: 1, OperationIDs: []int64{1, 2}}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range shift")
		}
	}()
	v.Shift(3, 99)
}

func TestPrivateLogValueEquals(t *testing.T) {
	a := PrivateLogValue{ThreadID: 1, OperationIDs: []int64{1, 2, 3}}
	b := PrivateLogValue{ThreadID: 1, OperationIDs: []int64{1, 2, 3}}
	c := PrivateLogValue{ThreadID: 2, OperationIDs: []int64{1, 2, 3}}
	d := PrivateLogValue{ThreadID: 1, OperationIDs: []int64{1, 2}}
	if !a.Equals(b) {
		t.Fatal("expected a.Equals(b)")
	}
	if a.Equals(c) {
		t.Fatal("different threadId should not be equal")
	}
	if a.Equals(d) {
		t.Fatal("different length should not be equal")
	}
}
