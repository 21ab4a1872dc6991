package stressor

import (
	"context"
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharedcode/radargun/cache"
)

// Status reports the lifecycle stage of a StressorWorker.
type Status int

const (
	StatusCreated Status = iota
	StatusLoading
	StatusRunning
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusLoading:
		return "loading"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// KeyRange is a contiguous numeric key range [Start, End), optionally
// inherited from a dead worker (spec.md §3).
type KeyRange struct {
	Start, End int64
}

// invoker is the capability every logic (LegacyLogic or a log logic) exposes
// to StressorWorker's run loop.
type invoker interface {
	Invoke(ctx context.Context) error
}

// terminatable lets the worker push RequestTerminate down into a log logic's
// internal checker-wait polling loop.
type terminatable interface {
	RequestTerminate()
}

// rollbackable lets the worker ask a logic to best-effort rollback a
// transaction left open across Invoke calls when terminating mid-stream.
type rollbackable interface {
	RollbackIfOpen(ctx context.Context)
}

// StressorWorker owns one worker's execution: load-phase then op-phase,
// handling cancellation and final-transaction cleanup (spec.md §4.1).
type StressorWorker struct {
	threadID int
	opts     Options
	backend  cache.Backend
	keygen   KeyGenerator
	stats    *Statistics
	logic    invoker

	primary   KeyRange
	inherited []KeyRange

	loaded    atomic.Bool
	terminate atomic.Bool
	status    atomic.Int32

	mu      sync.Mutex
	lastErr error
}

// NewStressorWorker wires a worker around an already-constructed logic
// (LegacyLogic, PrivateLogLogic, or SharedLogLogic).
func NewStressorWorker(threadID int, opts Options, backend cache.Backend, keygen KeyGenerator,
	stats *Statistics, logic invoker, primary KeyRange, inherited []KeyRange) *StressorWorker {

	w := &StressorWorker{
		threadID:  threadID,
		opts:      opts.WithDefaults(),
		backend:   backend,
		keygen:    keygen,
		stats:     stats,
		logic:     logic,
		primary:   primary,
		inherited: inherited,
	}
	w.status.Store(int32(StatusCreated))
	return w
}

// IsLoaded reports whether the load phase has completed.
func (w *StressorWorker) IsLoaded() bool { return w.loaded.Load() }

// Status returns the worker's current lifecycle stage.
func (w *StressorWorker) Status() Status { return Status(w.status.Load()) }

// SnapshotStats delegates to the worker's Statistics.
func (w *StressorWorker) SnapshotStats(reset bool, nowNanos int64) []Snapshot {
	return w.stats.SnapshotStats(reset, nowNanos)
}

// RequestTerminate asks the worker to stop at the next safe point.
func (w *StressorWorker) RequestTerminate() {
	w.terminate.Store(true)
	if t, ok := w.logic.(terminatable); ok {
		t.RequestTerminate()
	}
}

// LastError returns the error that caused the worker to stop, if any.
func (w *StressorWorker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *StressorWorker) setErr(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

// Run drives the worker's full lifecycle: load phase (if not already
// loaded), then the op loop until termination or cancellation (spec.md §4.1).
func (w *StressorWorker) Run(ctx context.Context) error {
	if !w.loaded.Load() {
		w.status.Store(int32(StatusLoading))
		if err := w.load(ctx); err != nil {
			w.status.Store(int32(StatusFailed))
			w.setErr(err)
			return err
		}
		w.loaded.Store(true)
	}

	if w.opts.LoadOnly {
		w.status.Store(int32(StatusStopped))
		return nil
	}

	w.status.Store(int32(StatusRunning))
	for {
		if ctx.Err() != nil || w.terminate.Load() {
			break
		}
		if err := w.logic.Invoke(ctx); err != nil {
			if findInterruptionCause(err, w.opts.MaxCauseChainDepth) {
				log.Debug("worker interrupted", "threadId", w.threadID)
				break
			}
			log.Error("worker stopped on fatal error", "threadId", w.threadID, "error", err)
			w.status.Store(int32(StatusFailed))
			w.setErr(err)
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(w.opts.DelayBetweenRequests):
		}
	}

	if r, ok := w.logic.(rollbackable); ok {
		r.RollbackIfOpen(ctx)
	}
	w.status.Store(int32(StatusStopped))
	return nil
}

// load implements spec.md §4.1 step 1: write initial entries for the
// worker's primary range and any inherited dead-worker ranges.
func (w *StressorWorker) load(ctx context.Context) error {
	if w.opts.LoadWithPutIfAbsent && !w.backend.SupportsAtomic() {
		return NewConsistencyViolation("load phase requires putIfAbsent but backend lacks atomic capability")
	}

	r := NewRand(w.primary.Start)
	ranges := append([]KeyRange{w.primary}, w.inherited...)
	for _, kr := range ranges {
		for id := kr.Start; id < kr.End; id++ {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			key := w.keygen.GenerateKey(id)
			payload := randomPayload(r, w.opts.EntrySize)
			if w.opts.LoadWithPutIfAbsent {
				if _, err := w.backend.PutIfAbsent(ctx, w.opts.BucketID, key, payload); err != nil {
					return fmt.Errorf("load putIfAbsent key %d: %w", id, err)
				}
				continue
			}
			if err := w.backend.Put(ctx, w.opts.BucketID, key, payload); err != nil {
				return fmt.Errorf("load put key %d: %w", id, err)
			}
		}
	}
	return nil
}
