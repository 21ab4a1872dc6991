package stressor

import (
	"context"
	log "log/slog"
	"time"

	"github.com/sharedcode/radargun/cache"
	"github.com/sharedcode/radargun/logvalue"
)

// SharedLogLogic is the log logic where any worker may write any key, using
// compare-and-swap and replace primitives to resolve write races (spec.md §4.5).
// It requires a backend with SupportsAtomic() == true.
type SharedLogLogic struct {
	*LogLogicBase
}

// NewSharedLogLogic constructs a SharedLogLogic over the full [0, NumEntries)
// key domain.
func NewSharedLogLogic(ctx context.Context, threadID int, opts Options, backend cache.Backend,
	keygen KeyGenerator, liveness LivenessOracle, stats *Statistics) (*SharedLogLogic, error) {

	if !backend.SupportsAtomic() {
		return nil, NewConsistencyViolation("shared log logic requires an atomic-capable backend")
	}
	s := &SharedLogLogic{}
	base, err := newLogLogicBase(ctx, s, threadID, opts, backend, keygen, liveness, stats, int64(threadID))
	if err != nil {
		return nil, err
	}
	s.LogLogicBase = base
	return s, nil
}

func (s *SharedLogLogic) nextKeyID(r *Rand) int64 {
	if s.opts.NumEntries <= 0 {
		return 0
	}
	return r.Int63n(int64(s.opts.NumEntries))
}

func (s *SharedLogLogic) checkedGet(ctx context.Context, keyID int64) (logvalue.SharedLogValue, []byte, bool, error) {
	if s.hasPendingRemove(keyID) {
		return logvalue.SharedLogValue{}, nil, false, nil
	}
	key := s.keygen.GenerateKey(keyID)
	raw, err := s.backend.Get(ctx, s.opts.BucketID, key)
	if err != nil {
		return logvalue.SharedLogValue{}, nil, false, err
	}
	if raw == nil {
		return logvalue.SharedLogValue{}, nil, false, nil
	}
	var v logvalue.SharedLogValue
	if err := unmarshalJSON(raw, &v); err != nil {
		return logvalue.SharedLogValue{}, nil, false, NewConsistencyViolation("shared log value at key %d: %v", keyID, err)
	}
	return v, raw, true, nil
}

// nextValue implements spec.md §4.5's nextValue.
func (s *SharedLogLogic) nextValue(ctx context.Context, prev logvalue.SharedLogValue, hasPrev bool,
	backup logvalue.SharedLogValue, hasBackup bool) (logvalue.SharedLogValue, bool, error) {

	switch {
	case !hasPrev && !hasBackup:
		return logvalue.NewSharedLogValue(s.ThreadID, s.operationID), true, nil
	case hasPrev && hasBackup:
		joined := prev.Join(backup)
		if joined.Size() >= s.opts.LogValueMaxSize {
			return s.filterAndAddOperation(ctx, joined)
		}
		return joined.With(s.ThreadID, s.operationID), true, nil
	case hasPrev:
		if prev.Size() >= s.opts.LogValueMaxSize {
			return s.filterAndAddOperation(ctx, prev)
		}
		return prev.With(s.ThreadID, s.operationID), true, nil
	default:
		if backup.Size() >= s.opts.LogValueMaxSize {
			return s.filterAndAddOperation(ctx, backup)
		}
		return backup.With(s.ThreadID, s.operationID), true, nil
	}
}

// filterAndAddOperation implements spec.md §4.5's filterAndAddOperation.
func (s *SharedLogLogic) filterAndAddOperation(ctx context.Context, value logvalue.SharedLogValue) (logvalue.SharedLogValue, bool, error) {
	minSeen, _ := value.MinFrom(s.ThreadID)
	mins, err := s.getCheckedOperations(ctx, minSeen)
	if err != nil {
		return logvalue.SharedLogValue{}, false, err
	}
	filtered := value.WithMins(s.ThreadID, s.operationID, mins)
	if filtered.Size() > s.opts.LogValueMaxSize {
		return logvalue.SharedLogValue{}, false, nil
	}
	return filtered, true, nil
}

// computeNext re-reads keyID and its backup and retries nextValue while it
// reports "not ready", honoring termination and an upper poll bound (spec.md §9 resolves
// the open question about unbounded retry here).
func (s *SharedLogLogic) computeNext(ctx context.Context, keyID int64) (logvalue.SharedLogValue, []byte, bool, logvalue.SharedLogValue, []byte, bool, logvalue.SharedLogValue, error) {
	for poll := 0; poll < s.opts.MaxCheckerWaitPolls; poll++ {
		if s.Terminated() || ctx.Err() != nil {
			return logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, nil
		}
		prev, prevRaw, hasPrev, err := s.checkedGet(ctx, keyID)
		if err != nil {
			return logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, err
		}
		backup, backupRaw, hasBackup, err := s.checkedGet(ctx, ^keyID)
		if err != nil {
			return logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, err
		}
		next, ok, err := s.nextValue(ctx, prev, hasPrev, backup, hasBackup)
		if err != nil {
			return logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, err
		}
		if ok {
			return prev, prevRaw, hasPrev, backup, backupRaw, hasBackup, next, nil
		}
		select {
		case <-ctx.Done():
			return logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, nil
		case <-time.After(s.opts.CheckerPollInterval):
		}
	}
	return logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{}, nil, false, logvalue.SharedLogValue{},
		NewConsistencyViolation("thread %d: checker progress stalled computing next shared value", s.ThreadID)
}

// invokeLogic implements spec.md §4.5.
func (s *SharedLogLogic) invokeLogic(ctx context.Context, keyID int64, operation Operation) (bool, error) {
	if operation != Put && operation != Remove {
		return false, NewConsistencyViolation("shared log logic rejects operation %s", operation)
	}

	_, prevRaw, hasPrev, _, backupRaw, hasBackup, next, err := s.computeNext(ctx, keyID)
	if err != nil {
		return false, err
	}
	if next.Size() == 0 {
		// computeNext gave up because the logic was terminated or ctx was
		// canceled; a stalled checker past the poll bound is reported as err above.
		return false, nil
	}

	key := s.keygen.GenerateKey(keyID)
	backupKey := s.keygen.GenerateKey(^keyID)
	nextRaw, err := marshalJSON(next)
	if err != nil {
		return false, err
	}

	if operation == Put {
		won, err := casWrite(ctx, s.backend, s.opts.BucketID, key, prevRaw, hasPrev, nextRaw)
		if err != nil {
			return false, err
		}
		if !won {
			return false, nil
		}
		if hasBackup {
			if err := s.delayedRemoveValue(ctx, s.opts.BucketID, ^keyID, backupKey, backupRaw); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	// operation == Remove: the operation is recorded in the backup slot.
	won, err := casWrite(ctx, s.backend, s.opts.BucketID, backupKey, backupRaw, hasBackup, nextRaw)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	if hasPrev {
		if err := s.delayedRemoveValue(ctx, s.opts.BucketID, keyID, key, prevRaw); err != nil {
			return false, err
		}
	}
	return true, nil
}

// removeCommitted implements spec.md §6's atomic remove(bucket,key,expected):
// any worker may have raced in a new value at this slot since the delayed
// remove was queued, so the deletion is compare-and-swap against dr.oldValue
// rather than an unconditional removal. Losing the race means another
// worker's write already superseded the stale value; that is an ordinary
// outcome of shared writes, not a consistency violation.
func (s *SharedLogLogic) removeCommitted(ctx context.Context, dr delayedRemoveEntry) error {
	ok, err := s.backend.RemoveExpected(ctx, dr.bucketID, dr.key, dr.oldValue)
	if err != nil {
		if err == cache.ErrNotAtomic {
			return NewConsistencyViolation("shared log logic requires an atomic-capable backend")
		}
		return err
	}
	if !ok {
		log.Debug("delayed remove lost race, value already superseded", "threadId", s.ThreadID, "key", dr.key)
	}
	return nil
}

// casWrite performs PutIfAbsent when there is no prior value, or Replace
// when there is, returning whether this call won the race.
func casWrite(ctx context.Context, backend cache.Backend, bucketID, key string, prevRaw []byte, hasPrev bool, nextRaw []byte) (bool, error) {
	if !hasPrev {
		won, err := backend.PutIfAbsent(ctx, bucketID, key, nextRaw)
		if err != nil {
			if err == cache.ErrNotAtomic {
				return false, NewConsistencyViolation("shared log logic requires an atomic-capable backend")
			}
			return false, err
		}
		return bytesEqual(won, nextRaw), nil
	}
	ok, err := backend.Replace(ctx, bucketID, key, prevRaw, nextRaw)
	if err != nil {
		if err == cache.ErrNotAtomic {
			return false, NewConsistencyViolation("shared log logic requires an atomic-capable backend")
		}
		return false, err
	}
	return ok, nil
}
