package stressor

import (
	"context"
	log "log/slog"
	"time"

	"github.com/sharedcode/radargun/cache"
)

// LegacyLogic is the baseline, non-log-aware driver: a rotating cursor over
// [start, end) issuing GET/PUT/REMOVE by a configured probability mix, with
// optional fixed-size transactions (spec.md §4.2).
type LegacyLogic struct {
	opts    Options
	backend cache.Backend
	keygen  KeyGenerator
	stats   *Statistics

	start, end, cursor int64
	rand               *Rand

	inTx           bool
	remainingTxOps int
}

// NewLegacyLogic constructs a LegacyLogic over [start, end), cursor starting at start.
func NewLegacyLogic(start, end int64, opts Options, backend cache.Backend, keygen KeyGenerator, stats *Statistics) *LegacyLogic {
	return &LegacyLogic{
		opts:    opts.WithDefaults(),
		backend: backend,
		keygen:  keygen,
		stats:   stats,
		start:   start,
		end:     end,
		cursor:  start,
		rand:    NewRand(start),
	}
}

// Invoke performs exactly one step of spec.md §4.2's invoke().
func (l *LegacyLogic) Invoke(ctx context.Context) error {
	operation := l.opts.OperationMix.pick(l.rand)
	keyID := l.cursor
	l.cursor++
	if l.cursor >= l.end {
		l.cursor = l.start
	}
	key := l.keygen.GenerateKey(keyID)

	transactional := l.opts.TransactionSize > 0
	if transactional && !l.inTx {
		if err := l.backend.StartTransaction(ctx); err != nil {
			return err
		}
		l.inTx = true
		l.remainingTxOps = l.opts.TransactionSize
	}

	started := time.Now()
	resultOp, err := l.perform(ctx, key, operation)
	elapsed := time.Since(started)

	if err != nil {
		l.stats.registerError(resultOp)
		log.Warn("legacy op failed", "error", err)
		if transactional {
			if rbErr := l.backend.EndTransaction(ctx, false); rbErr != nil {
				log.Warn("legacy rollback failed", "error", rbErr)
			}
			l.inTx = false
			l.remainingTxOps = 0
		}
		return nil
	}

	l.stats.registerRequest(elapsed, 0, resultOp)

	if transactional {
		l.remainingTxOps--
		if l.remainingTxOps <= 0 {
			if err := l.backend.EndTransaction(ctx, true); err != nil {
				log.Warn("legacy commit failed", "error", err)
			}
			l.inTx = false
			l.remainingTxOps = 0
		}
	}
	return nil
}

func (l *LegacyLogic) perform(ctx context.Context, key string, operation Operation) (Operation, error) {
	switch operation {
	case Get:
		v, err := l.backend.Get(ctx, l.opts.BucketID, key)
		if err != nil {
			return operation, err
		}
		if v == nil {
			return GetNull, nil
		}
		return Get, nil
	case Put:
		payload := randomPayload(l.rand, l.opts.EntrySize)
		return Put, l.backend.Put(ctx, l.opts.BucketID, key, payload)
	case Remove:
		_, err := l.backend.Remove(ctx, l.opts.BucketID, key)
		return Remove, err
	default:
		return operation, NewConsistencyViolation("legacy logic: unknown operation %v", operation)
	}
}

// RollbackIfOpen performs a best-effort rollback of a currently open
// transaction; used when a worker terminates between Invoke calls while a
// multi-op transaction is still in flight.
func (l *LegacyLogic) RollbackIfOpen(ctx context.Context) {
	if !l.inTx {
		return
	}
	if err := l.backend.EndTransaction(ctx, false); err != nil {
		log.Warn("legacy best-effort rollback failed", "error", err)
	}
	l.inTx = false
	l.remainingTxOps = 0
}

// randomPayload produces exactly entrySize bytes (spec.md §9 resolves the
// "each char is 2 bytes" inconsistency in favor of the byte-array reading).
func randomPayload(r *Rand, entrySize int) []byte {
	buf := make([]byte, entrySize)
	for i := 0; i < entrySize; i++ {
		buf[i] = byte(r.Intn(256))
	}
	return buf
}
