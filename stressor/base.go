package stressor

import (
	"context"
	log "log/slog"
	"sync/atomic"

	"github.com/sharedcode/radargun"
	"github.com/sharedcode/radargun/cache"
)

// valueLogic is the small capability set a concrete log logic (PrivateLogLogic
// or SharedLogLogic) contributes to the shared LogLogicBase state machine
// (Design Notes: "model this as a base component parameterized over a
// ValueType plus a small capability set").
type valueLogic interface {
	nextKeyID(r *Rand) int64
	invokeLogic(ctx context.Context, keyID int64, operation Operation) (progressed bool, err error)
	// removeCommitted performs a flushed delayed remove's actual deletion,
	// checked against dr.oldValue the way each logic's write discipline
	// requires: PrivateLogLogic asserts the removed value matches (only its
	// own worker ever writes the key), SharedLogLogic uses a compare-and-swap
	// remove since any worker may have raced in a new value first.
	removeCommitted(ctx context.Context, dr delayedRemoveEntry) error
}

type delayedRemoveEntry struct {
	bucketID string
	key      string
	oldValue []byte
}

// LogLogicBase is the shared state machine described in spec.md §4.3: an
// operation-id counter, a replayable RNG, transaction framing, delayed
// removes, rollback replay, and checker synchronization via a pending-break
// flag (the out-parameter rendering of BreakTxRequest, per Design Notes).
type LogLogicBase struct {
	impl valueLogic

	ThreadID int
	opts     Options
	backend  cache.Backend
	keygen   KeyGenerator
	liveness LivenessOracle
	stats    *Statistics

	operationID int64
	rand        *Rand

	delayedRemoves map[int64]delayedRemoveEntry

	inTx               bool
	txStartOperationID int64
	txStartKeyID       int64
	txStartRandSeed    int64
	txRolledBack       bool
	remainingTxOps     int
	breakRequested     bool

	terminate atomic.Bool
}

// newLogLogicBase performs spec.md §4.3's restart-recovery constructor logic:
// if a LastOperation checkpoint exists for threadID, resume from it; otherwise
// seed fresh from startSeed (the worker's starting key, for private-mode
// determinism).
func newLogLogicBase(ctx context.Context, impl valueLogic, threadID int, opts Options, backend cache.Backend,
	keygen KeyGenerator, liveness LivenessOracle, stats *Statistics, startSeed int64) (*LogLogicBase, error) {

	b := &LogLogicBase{
		impl:           impl,
		ThreadID:       threadID,
		opts:           opts.WithDefaults(),
		backend:        backend,
		keygen:         keygen,
		liveness:       liveness,
		stats:          stats,
		delayedRemoves: make(map[int64]delayedRemoveEntry),
	}

	raw, err := backend.Get(ctx, opts.BucketID, lastOperationKey(threadID))
	if err != nil {
		return nil, err
	}
	if rec, ok := decodeLastOperation(raw); ok {
		b.operationID = rec.OperationID + 1
		b.rand = NewRand(rec.RandSeed)
	} else {
		b.operationID = 0
		b.rand = NewRand(startSeed)
	}
	return b, nil
}

// RequestTerminate asks the logic's invoke loop to stop at the next
// opportunity.
func (b *LogLogicBase) RequestTerminate() { b.terminate.Store(true) }

// Terminated reports whether RequestTerminate has been called.
func (b *LogLogicBase) Terminated() bool { return b.terminate.Load() }

// OperationID returns the next operation id this logic will attempt.
func (b *LogLogicBase) OperationID() int64 { return b.operationID }

// Invoke runs exactly one logical operation to completion (spec.md §4.3's
// invoke() outer loop), retrying internally on recoverable failure and
// rollback.
func (b *LogLogicBase) Invoke(ctx context.Context) error {
	keyID := b.impl.nextKeyID(b.rand)
	for {
		if err := ctx.Err(); err != nil {
			b.RollbackIfOpen(ctx)
			return err
		}
		if b.terminate.Load() {
			b.RollbackIfOpen(ctx)
			return nil
		}
		if b.txRolledBack {
			keyID = b.txStartKeyID
			b.operationID = b.txStartOperationID
			b.rand = NewRand(b.txStartRandSeed)
			b.txRolledBack = false
			radargun.RandomSleep(ctx)
		}
		done, err := b.invokeOn(ctx, keyID)
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	b.operationID++
	return nil
}

func (b *LogLogicBase) pickOperation() Operation {
	if b.rand.Intn(2) == 0 {
		return Put
	}
	return Remove
}

// invokeOn implements spec.md §4.3's invokeOn(keyId) protocol.
func (b *LogLogicBase) invokeOn(ctx context.Context, keyID int64) (bool, error) {
	transactional := b.opts.TransactionSize > 0
	if transactional && !b.inTx {
		b.txStartOperationID = b.operationID
		b.txStartKeyID = keyID
		b.txStartRandSeed = b.rand.Seed()
		if err := b.backend.StartTransaction(ctx); err != nil {
			return false, err
		}
		b.inTx = true
		b.remainingTxOps = b.opts.TransactionSize
	}

	b.breakRequested = false
	operation := b.pickOperation()
	progressed, err := b.impl.invokeLogic(ctx, keyID, operation)
	if err != nil {
		return b.handleInvokeError(ctx, err)
	}
	if !progressed {
		// Even though this op could not complete this round, a pending break
		// (e.g. a dead-checker bypass write that must become visible) still
		// forces an immediate commit of whatever the transaction holds so
		// far; the same op id is retried in a fresh transaction.
		if transactional && b.inTx && b.breakRequested {
			b.commitOnBreak(ctx)
		}
		return false, nil
	}

	if !transactional {
		if b.operationID%int64(b.opts.LogCounterUpdatePeriod) == 0 {
			b.writeCheckpoint(ctx)
		}
		return true, nil
	}

	b.remainingTxOps--
	breakPending := b.breakRequested
	if b.remainingTxOps > 0 && !breakPending {
		return true, nil
	}

	if err := b.backend.EndTransaction(ctx, true); err != nil {
		log.Debug("commit failed, rolling back", "threadId", b.ThreadID, "error", err)
		b.txRolledBack = true
		b.afterRollback()
		b.inTx = false
		b.remainingTxOps = 0
		return false, nil
	}
	b.inTx = false
	b.afterCommit(ctx)
	if breakPending {
		return false, nil
	}
	b.writeCheckpointTx(ctx)
	return true, nil
}

// commitOnBreak commits the in-flight transaction immediately in response to
// a pending break raised while the current op was still blocked (e.g. a
// dead-checker bypass write), leaving the transaction closed either way so
// the next invokeOn call opens a fresh one for the retried op.
func (b *LogLogicBase) commitOnBreak(ctx context.Context) {
	if err := b.backend.EndTransaction(ctx, true); err != nil {
		log.Debug("commit-on-break failed, rolling back", "threadId", b.ThreadID, "error", err)
		b.txRolledBack = true
		b.afterRollback()
	} else {
		b.afterCommit(ctx)
	}
	b.inTx = false
	b.remainingTxOps = 0
}

func (b *LogLogicBase) handleInvokeError(ctx context.Context, err error) (bool, error) {
	if findInterruptionCause(err, b.opts.MaxCauseChainDepth) {
		if b.inTx {
			b.rollbackOnCancel(ctx)
		}
		return false, err
	}
	if IsConsistencyViolation(err) {
		log.Error("consistency violation", "threadId", b.ThreadID, "error", err)
		return false, err
	}
	if isFailoverFault(err) {
		log.Error("backend storage fault, not retrying", "threadId", b.ThreadID, "error", err)
		if b.inTx {
			if rbErr := b.backend.EndTransaction(ctx, false); rbErr != nil {
				log.Warn("rollback failed", "threadId", b.ThreadID, "error", rbErr)
			}
			b.inTx = false
			b.afterRollback()
			b.remainingTxOps = 0
		}
		return false, err
	}
	if isSuspectFault(err) {
		log.Debug("member-suspected fault, retrying", "threadId", b.ThreadID, "error", err)
	} else {
		log.Warn("backend fault, retrying", "threadId", b.ThreadID, "error", err)
	}
	if b.inTx {
		if rbErr := b.backend.EndTransaction(ctx, false); rbErr != nil {
			log.Warn("rollback failed", "threadId", b.ThreadID, "error", rbErr)
		}
		b.txRolledBack = true
		b.afterRollback()
		b.inTx = false
		b.remainingTxOps = 0
	}
	return false, nil
}

// rollbackOnCancel performs a best-effort rollback during cancellation; it
// must not execute pending delayed removes (spec.md §5: they would erase
// data whose replacement write has not been durably committed).
func (b *LogLogicBase) rollbackOnCancel(ctx context.Context) {
	if err := b.backend.EndTransaction(ctx, false); err != nil {
		log.Warn("best-effort rollback on cancellation failed", "threadId", b.ThreadID, "error", err)
	}
	b.inTx = false
	b.delayedRemoves = make(map[int64]delayedRemoveEntry)
}

// RollbackIfOpen performs a best-effort rollback of a currently open
// transaction, used both by Invoke's own cancellation path and by
// StressorWorker when terminating between Invoke calls while a multi-op
// transaction is still in flight (spec.md §4.1, §5).
func (b *LogLogicBase) RollbackIfOpen(ctx context.Context) {
	if b.inTx {
		b.rollbackOnCancel(ctx)
	}
}

func (b *LogLogicBase) afterRollback() {
	b.delayedRemoves = make(map[int64]delayedRemoveEntry)
}

// afterCommit flushes delayed removes in a dedicated committed transaction,
// retrying until success or termination (spec.md §4.3).
func (b *LogLogicBase) afterCommit(ctx context.Context) {
	if len(b.delayedRemoves) == 0 {
		return
	}
	pending := b.delayedRemoves
	b.delayedRemoves = make(map[int64]delayedRemoveEntry)

	for !b.terminate.Load() {
		err := radargun.Retry(ctx, func(ctx context.Context) error {
			if err := b.backend.StartTransaction(ctx); err != nil {
				return err
			}
			for _, dr := range pending {
				if err := b.impl.removeCommitted(ctx, dr); err != nil {
					b.backend.EndTransaction(ctx, false)
					return err
				}
			}
			return b.backend.EndTransaction(ctx, true)
		}, func(ctx context.Context) {
			log.Warn("delayed-remove flush attempt exhausted, retrying", "threadId", b.ThreadID)
		})
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (b *LogLogicBase) writeCheckpoint(ctx context.Context) {
	rec := lastOperationRecord{OperationID: b.operationID, RandSeed: b.rand.Seed()}
	if err := b.backend.Put(ctx, b.opts.BucketID, lastOperationKey(b.ThreadID), encodeLastOperation(rec)); err != nil {
		log.Warn("checkpoint write failed", "threadId", b.ThreadID, "error", err)
	}
}

func (b *LogLogicBase) writeCheckpointTx(ctx context.Context) {
	if err := b.backend.StartTransaction(ctx); err != nil {
		log.Warn("checkpoint transaction start failed", "threadId", b.ThreadID, "error", err)
		return
	}
	rec := lastOperationRecord{OperationID: b.operationID, RandSeed: b.rand.Seed()}
	if err := b.backend.Put(ctx, b.opts.BucketID, lastOperationKey(b.ThreadID), encodeLastOperation(rec)); err != nil {
		b.backend.EndTransaction(ctx, false)
		log.Warn("checkpoint write failed", "threadId", b.ThreadID, "error", err)
		return
	}
	if err := b.backend.EndTransaction(ctx, true); err != nil {
		log.Warn("checkpoint commit failed", "threadId", b.ThreadID, "error", err)
	}
}

// hasPendingRemove reports whether keyID has a delayed remove queued in the
// current transaction; a checkedGet must treat such a key as logically
// absent even though its physical removal has not yet been applied.
func (b *LogLogicBase) hasPendingRemove(keyID int64) bool {
	_, ok := b.delayedRemoves[keyID]
	return ok
}

// delayedRemoveValue implements spec.md §4.3's delayedRemoveValue: if
// non-transactional, remove immediately (checked); if transactional, queue it,
// canceling a complementary move recorded earlier in the same transaction.
func (b *LogLogicBase) delayedRemoveValue(ctx context.Context, bucketID string, keyID int64, key string, prevValue []byte) error {
	if !b.inTx {
		return b.checkedRemoveRaw(ctx, bucketID, key, prevValue)
	}
	complement := ^keyID
	if _, ok := b.delayedRemoves[complement]; ok {
		delete(b.delayedRemoves, complement)
		return nil
	}
	b.delayedRemoves[keyID] = delayedRemoveEntry{bucketID: bucketID, key: key, oldValue: prevValue}
	return nil
}

// checkedRemoveRaw removes key and asserts the prior value equals expected
// (or both nil); a mismatch is a fatal consistency violation (spec.md §4.4).
func (b *LogLogicBase) checkedRemoveRaw(ctx context.Context, bucketID, key string, expected []byte) error {
	prior, err := b.backend.Remove(ctx, bucketID, key)
	if err != nil {
		return err
	}
	if !bytesEqual(prior, expected) {
		return NewConsistencyViolation("checkedRemove: key %q expected %x, found %x", key, expected, prior)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// getCheckedOperation implements spec.md §4.3's checker-synchronization
// algorithm for a single stressor thread, scanning every checker worker.
func (b *LogLogicBase) getCheckedOperation(ctx context.Context, thread int, minOperationID int64) (int64, error) {
	min := int64(-1)
	haveMin := false
	for i := 0; i < b.opts.NumSlaves; i++ {
		raw, err := b.backend.Get(ctx, b.opts.BucketID, checkerKey(i, thread))
		if err != nil {
			return 0, err
		}
		readOpID := int64(-1)
		if rec, ok := decodeCheckerRecord(raw); ok {
			readOpID = rec.OperationID
		}

		effective := readOpID
		if readOpID < minOperationID && b.opts.IgnoreDeadCheckers && !b.liveness.IsSlaveAlive(i) {
			ignoredRaw, err := b.backend.Get(ctx, b.opts.BucketID, ignoredKey(i, thread))
			if err != nil {
				return 0, err
			}
			ignored, ok := decodeIgnoredValue(ignoredRaw)
			if !ok || ignored < minOperationID {
				if err := b.backend.Put(ctx, b.opts.BucketID, ignoredKey(i, thread), encodeIgnoredValue(minOperationID)); err != nil {
					return 0, err
				}
				if b.inTx {
					// Commit-now-retry: the ignored-key write must be visible
					// to the checker before the stressor treats it as consumed.
					b.breakRequested = true
				}
			}
			effective = minOperationID
		}

		if !haveMin || effective < min {
			min = effective
			haveMin = true
		}
	}
	if !haveMin {
		return minOperationID, nil
	}
	return min, nil
}

// getCheckedOperations returns getCheckedOperation's result for every thread
// in [0, NumThreads).
func (b *LogLogicBase) getCheckedOperations(ctx context.Context, minOperationID int64) (map[int]int64, error) {
	result := make(map[int]int64, b.opts.NumThreads)
	for t := 0; t < b.opts.NumThreads; t++ {
		min, err := b.getCheckedOperation(ctx, t, minOperationID)
		if err != nil {
			return nil, err
		}
		result[t] = min
	}
	return result, nil
}
