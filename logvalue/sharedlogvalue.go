package logvalue

import (
	"encoding/json"
	"math"
	"sort"
)

// threadSequence is one worker's ordered, deduplicated opId subsequence.
type threadSequence struct {
	ThreadID     int     `json:"threadId"`
	OperationIDs []int64 `json:"operationIds"`
}

// SharedLogValue is logically a mapping threadId -> ordered sequence of
// opIds, plus a derived total size. It may be written by any worker. The
// per-thread entries are always kept sorted by ThreadID so that two
// structurally equal values marshal to byte-identical JSON (see package doc).
type SharedLogValue struct {
	entries []threadSequence
}

// NewSharedLogValue returns the value carrying a single opId for threadID.
func NewSharedLogValue(threadID int, firstOpID int64) SharedLogValue {
	return SharedLogValue{entries: []threadSequence{{ThreadID: threadID, OperationIDs: []int64{firstOpID}}}}
}

// Size returns the total number of opIds across every worker's subsequence.
func (v SharedLogValue) Size() int {
	n := 0
	for _, e := range v.entries {
		n += len(e.OperationIDs)
	}
	return n
}

// PerThread returns threadID's subsequence, or nil if it holds none.
func (v SharedLogValue) PerThread(threadID int) []int64 {
	for _, e := range v.entries {
		if e.ThreadID == threadID {
			return e.OperationIDs
		}
	}
	return nil
}

func (v SharedLogValue) clone() []threadSequence {
	out := make([]threadSequence, len(v.entries))
	for i, e := range v.entries {
		ids := make([]int64, len(e.OperationIDs))
		copy(ids, e.OperationIDs)
		out[i] = threadSequence{ThreadID: e.ThreadID, OperationIDs: ids}
	}
	return out
}

func sortedByThreadID(entries []threadSequence) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ThreadID < entries[j].ThreadID })
}

// With returns a new value with opID appended to threadID's subsequence.
func (v SharedLogValue) With(threadID int, opID int64) SharedLogValue {
	entries := v.clone()
	for i := range entries {
		if entries[i].ThreadID == threadID {
			entries[i].OperationIDs = append(entries[i].OperationIDs, opID)
			return SharedLogValue{entries: entries}
		}
	}
	entries = append(entries, threadSequence{ThreadID: threadID, OperationIDs: []int64{opID}})
	sortedByThreadID(entries)
	return SharedLogValue{entries: entries}
}

// WithMins is With, but first discards, for every worker t, the prefix of
// t's subsequence whose ids are <= mins[t].
func (v SharedLogValue) WithMins(threadID int, opID int64, mins map[int]int64) SharedLogValue {
	entries := v.clone()
	filtered := entries[:0]
	for _, e := range entries {
		if min, ok := mins[e.ThreadID]; ok {
			kept := e.OperationIDs[:0:0]
			for _, id := range e.OperationIDs {
				if id > min {
					kept = append(kept, id)
				}
			}
			e.OperationIDs = kept
		}
		if len(e.OperationIDs) > 0 {
			filtered = append(filtered, e)
		}
	}
	return SharedLogValue{entries: filtered}.With(threadID, opID)
}

// Join returns a value whose per-worker subsequence is the concatenation of
// the two inputs' subsequences after deduplication and sorting by opId.
func (v SharedLogValue) Join(other SharedLogValue) SharedLogValue {
	byThread := make(map[int]map[int64]struct{})
	order := []int{}
	addAll := func(e threadSequence) {
		set, ok := byThread[e.ThreadID]
		if !ok {
			set = make(map[int64]struct{})
			byThread[e.ThreadID] = set
			order = append(order, e.ThreadID)
		}
		for _, id := range e.OperationIDs {
			set[id] = struct{}{}
		}
	}
	for _, e := range v.entries {
		addAll(e)
	}
	for _, e := range other.entries {
		addAll(e)
	}
	entries := make([]threadSequence, 0, len(order))
	for _, tid := range order {
		set := byThread[tid]
		ids := make([]int64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		entries = append(entries, threadSequence{ThreadID: tid, OperationIDs: ids})
	}
	sortedByThreadID(entries)
	return SharedLogValue{entries: entries}
}

// MinFrom returns the smallest opId in self[threadID], and false if that
// worker's subsequence is empty (the caller should treat this as +infinity).
func (v SharedLogValue) MinFrom(threadID int) (int64, bool) {
	ids := v.PerThread(threadID)
	if len(ids) == 0 {
		return math.MaxInt64, false
	}
	min := ids[0]
	for _, id := range ids[1:] {
		if id < min {
			min = id
		}
	}
	return min, true
}

// Equals reports structural equality: same set of non-empty worker
// subsequences, each with identical ordered opId contents.
func (v SharedLogValue) Equals(other SharedLogValue) bool {
	if len(v.entries) != len(other.entries) {
		return false
	}
	for i := range v.entries {
		a, b := v.entries[i], other.entries[i]
		if a.ThreadID != b.ThreadID || len(a.OperationIDs) != len(b.OperationIDs) {
			return false
		}
		for j := range a.OperationIDs {
			if a.OperationIDs[j] != b.OperationIDs[j] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON emits the per-thread entries already sorted by ThreadID with
// opId subsequences in their stored (ascending; Join also deduplicates)
// order, giving a canonical, backend-CAS-safe encoding.
func (v SharedLogValue) MarshalJSON() ([]byte, error) {
	if v.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.entries)
}

// UnmarshalJSON restores a value from its canonical encoding.
func (v *SharedLogValue) UnmarshalJSON(data []byte) error {
	var entries []threadSequence
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	sortedByThreadID(entries)
	v.entries = entries
	return nil
}
