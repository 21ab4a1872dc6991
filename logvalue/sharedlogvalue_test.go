package logvalue

import (
	"encoding/json"
	"testing"
)

func TestSharedLogValueJoinCommutativeAndIdempotent(t *testing.T) {
	a := NewSharedLogValue(0, 1).With(0, 2).With(1, 5)
	b := NewSharedLogValue(1, 5).With(0, 1).With(0, 2)

	j1 := a.Join(b)
	j2 := b.Join(a)
	if !j1.Equals(j2) {
		t.Fatalf("join not commutative: %+v vs %+v", j1, j2)
	}

	self := a.Join(a)
	if !self.Equals(a) {
		t.Fatalf("join not idempotent on identical input: %+v vs %+v", self, a)
	}

	for _, tid := range []int{0, 1} {
		ids := j1.PerThread(tid)
		for i := 1; i < len(ids); i++ {
			if ids[i-1] >= ids[i] {
				t.Fatalf("thread %d subsequence not strictly ordered: %v", tid, ids)
			}
		}
	}
}

func TestSharedLogValueWithMinsFiltersBelowBound(t *testing.T) {
	v := NewSharedLogValue(0, 1).With(0, 2).With(0, 3).With(1, 9)
	mins := map[int]int64{0: 2, 1: 100}
	next := v.WithMins(0, 4, mins)

	for _, id := range next.PerThread(0) {
		if id <= mins[0] {
			t.Fatalf("thread 0 still has id %d <= min %d", id, mins[0])
		}
	}
	if got := next.PerThread(1); len(got) != 0 {
		t.Fatalf("thread 1 subsequence should be fully filtered by min=100, got %v", got)
	}
}

func TestSharedLogValueMinFrom(t *testing.T) {
	v := NewSharedLogValue(0, 5).With(0, 2).With(0, 9)
	min, ok := v.MinFrom(0)
	if !ok || min != 2 {
		t.Fatalf("MinFrom(0): got (%d,%v), want (2,true)", min, ok)
	}
	if _, ok := v.MinFrom(7); ok {
		t.Fatal("MinFrom on absent thread should report ok=false")
	}
}

func TestSharedLogValueCanonicalEncoding(t *testing.T) {
	a := NewSharedLogValue(2, 10).With(0, 1).With(1, 5)
	b := NewSharedLogValue(0, 1).With(1, 5).With(2, 10)

	ba, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	bb, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(ba) != string(bb) {
		t.Fatalf("structurally equal values encoded differently:\n%s\n%s", ba, bb)
	}

	var roundTripped SharedLogValue
	if err := json.Unmarshal(ba, &roundTripped); err != nil {
		t.Fatal(err)
	}
	if !roundTripped.Equals(a) {
		t.Fatalf("round trip mismatch: %+v vs %+v", roundTripped, a)
	}
}
