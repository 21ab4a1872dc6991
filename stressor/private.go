package stressor

import (
	"context"
	"time"

	"github.com/sharedcode/radargun/cache"
	"github.com/sharedcode/radargun/logvalue"
)

// PrivateLogLogic is the log logic where each key is written by exactly one
// worker, using read-modify-write with expected-value removes (spec.md §4.4).
type PrivateLogLogic struct {
	*LogLogicBase

	start, end int64 // the worker's assigned primary key range [start, end)
}

// NewPrivateLogLogic constructs a PrivateLogLogic bound to key range
// [start, end), recovering checkpointed state from backend if present.
func NewPrivateLogLogic(ctx context.Context, threadID int, start, end int64, opts Options, backend cache.Backend,
	keygen KeyGenerator, liveness LivenessOracle, stats *Statistics) (*PrivateLogLogic, error) {

	p := &PrivateLogLogic{start: start, end: end}
	base, err := newLogLogicBase(ctx, p, threadID, opts, backend, keygen, liveness, stats, start)
	if err != nil {
		return nil, err
	}
	p.LogLogicBase = base
	return p, nil
}

func (p *PrivateLogLogic) nextKeyID(r *Rand) int64 {
	span := p.end - p.start
	if span <= 0 {
		return p.start
	}
	return p.start + r.Int63n(span)
}

func (p *PrivateLogLogic) checkedGet(ctx context.Context, keyID int64) (logvalue.PrivateLogValue, bool, error) {
	if p.hasPendingRemove(keyID) {
		return logvalue.PrivateLogValue{}, false, nil
	}
	raw, err := p.backend.Get(ctx, p.opts.BucketID, p.keygen.GenerateKey(keyID))
	if err != nil {
		return logvalue.PrivateLogValue{}, false, err
	}
	if raw == nil {
		return logvalue.PrivateLogValue{}, false, nil
	}
	v, err := decodePrivateLogValue(raw)
	if err != nil {
		return logvalue.PrivateLogValue{}, false, NewConsistencyViolation("private log value at key %d: %v", keyID, err)
	}
	return v, true, nil
}

func (p *PrivateLogLogic) checkedPut(ctx context.Context, keyID int64, value logvalue.PrivateLogValue) error {
	return p.backend.Put(ctx, p.opts.BucketID, p.keygen.GenerateKey(keyID), encodePrivateLogValue(value))
}

// removeCommitted implements spec.md §4.4's checked removal: since a private
// key is only ever written by the worker that owns it, the value found at
// removal time must equal what was recorded when the remove was queued.
func (p *PrivateLogLogic) removeCommitted(ctx context.Context, dr delayedRemoveEntry) error {
	return p.checkedRemoveRaw(ctx, dr.bucketID, dr.key, dr.oldValue)
}

// nextValue implements spec.md §4.4's nextValue: append when there's room,
// otherwise block on checker progress until the head of the log can be shed.
func (p *PrivateLogLogic) nextValue(ctx context.Context, prev logvalue.PrivateLogValue, hasPrev bool) (logvalue.PrivateLogValue, bool, error) {
	if !hasPrev {
		return logvalue.NewPrivateLogValue(p.ThreadID, p.operationID), true, nil
	}
	if prev.Size() < p.opts.LogValueMaxSize {
		return prev.With(p.operationID), true, nil
	}
	for poll := 0; poll < p.opts.MaxCheckerWaitPolls; poll++ {
		if p.Terminated() || ctx.Err() != nil {
			return logvalue.PrivateLogValue{}, false, nil
		}
		minChecked, err := p.getCheckedOperation(ctx, p.ThreadID, prev.GetOperationID(0))
		if err != nil {
			return logvalue.PrivateLogValue{}, false, err
		}
		if prev.GetOperationID(0) <= minChecked {
			prefix := 0
			for prefix < prev.Size() && prev.GetOperationID(prefix) <= minChecked {
				prefix++
			}
			return prev.Shift(prefix, p.operationID), true, nil
		}
		if p.breakRequested {
			return logvalue.PrivateLogValue{}, false, nil
		}
		select {
		case <-ctx.Done():
			return logvalue.PrivateLogValue{}, false, nil
		case <-time.After(p.opts.CheckerPollInterval):
		}
	}
	return logvalue.PrivateLogValue{}, false, NewConsistencyViolation(
		"thread %d: checker progress stalled waiting to shift key", p.ThreadID)
}

// invokeLogic implements spec.md §4.4.
func (p *PrivateLogLogic) invokeLogic(ctx context.Context, keyID int64, operation Operation) (bool, error) {
	if operation != Put && operation != Remove {
		return false, NewConsistencyViolation("private log logic rejects operation %s", operation)
	}

	prev, hasPrev, err := p.checkedGet(ctx, keyID)
	if err != nil {
		return false, err
	}

	if !hasPrev || operation == Put {
		basis := prev
		hasBasis := hasPrev
		var backup logvalue.PrivateLogValue
		usedBackup := false
		if !hasPrev {
			b, hasBackup, err := p.checkedGet(ctx, ^keyID)
			if err != nil {
				return false, err
			}
			if hasBackup {
				basis, hasBasis, backup, usedBackup = b, true, b, true
			}
		}
		next, ok, err := p.nextValue(ctx, basis, hasBasis)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if err := p.checkedPut(ctx, keyID, next); err != nil {
			return false, err
		}
		if usedBackup {
			if err := p.delayedRemoveValue(ctx, p.opts.BucketID, ^keyID, p.keygen.GenerateKey(^keyID), encodePrivateLogValue(backup)); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	// operation == Remove: move the value into the backup slot.
	next, ok, err := p.nextValue(ctx, prev, true)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := p.checkedPut(ctx, ^keyID, next); err != nil {
		return false, err
	}
	if err := p.delayedRemoveValue(ctx, p.opts.BucketID, keyID, p.keygen.GenerateKey(keyID), encodePrivateLogValue(prev)); err != nil {
		return false, err
	}
	return true, nil
}

func encodePrivateLogValue(v logvalue.PrivateLogValue) []byte {
	b, _ := marshalJSON(v)
	return b
}

func decodePrivateLogValue(raw []byte) (logvalue.PrivateLogValue, error) {
	var v logvalue.PrivateLogValue
	err := unmarshalJSON(raw, &v)
	return v, err
}
