package stressor

import (
	"sync"
	"time"
)

// opCounters tallies one Operation kind's outcomes.
type opCounters struct {
	count     int64
	errors    int64
	totalTime time.Duration
}

// Statistics is written by workers and snapshotted by an external observer;
// every update and the snapshot take mu, the "small critical section" spec.md
// §5 requires, so one Statistics may be shared by several workers
// (cmd/radargun shares one across its fleet).
type Statistics struct {
	mu        sync.Mutex
	byOp      map[Operation]*opCounters
	since     time.Time
}

// NewStatistics returns an empty Statistics starting its window at nowNanos.
func NewStatistics(nowNanos int64) *Statistics {
	return &Statistics{
		byOp:  make(map[Operation]*opCounters),
		since: time.Unix(0, nowNanos),
	}
}

func (s *Statistics) counters(op Operation) *opCounters {
	c, ok := s.byOp[op]
	if !ok {
		c = &opCounters{}
		s.byOp[op] = c
	}
	return c
}

// registerRequest records a successful operation's latency. extra is reserved
// for a secondary timing dimension (e.g. queueing delay) the legacy driver
// does not currently measure and always passes as 0.
func (s *Statistics) registerRequest(elapsed time.Duration, extra time.Duration, op Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters(op)
	c.count++
	c.totalTime += elapsed + extra
}

// registerError records a failed attempt at op.
func (s *Statistics) registerError(op Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters(op).errors++
}

// Snapshot is a point-in-time, immutable copy of one operation kind's counters.
type Snapshot struct {
	Operation    Operation
	Count        int64
	Errors       int64
	TotalTime    time.Duration
}

// SnapshotStats returns a snapshot of every operation kind's counters taken
// since the last reset (or construction). If reset is true, counters are
// zeroed and the window restarts at nowNanos.
func (s *Statistics) SnapshotStats(reset bool, nowNanos int64) []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.byOp))
	for op, c := range s.byOp {
		out = append(out, Snapshot{Operation: op, Count: c.count, Errors: c.errors, TotalTime: c.totalTime})
	}
	if reset {
		s.byOp = make(map[Operation]*opCounters)
		s.since = time.Unix(0, nowNanos)
	}
	return out
}
