package cache

import (
	"context"
	"errors"
)

// ErrNotAtomic is returned by PutIfAbsent/Replace/RemoveExpected when the backend
// was opened without atomic capability. Callers load-phase with loadWithPutIfAbsent
// or SharedLogLogic must fail fast, not silently degrade, when they see it.
var ErrNotAtomic = errors.New("cache: backend does not support atomic operations")

// Backend is the contract the stressor engine requires of a distributed key/value
// store. bucket namespaces a logical table/column-family; key and backup key (the
// bitwise complement of a numeric key id) live in the same bucket.
//
// Implementations: package rediscache (github.com/redis/go-redis/v9) and package
// cassandracache (github.com/gocql/gocql) ship with this module; package memcache
// offers an in-process implementation used by tests and by single-process runs.
type Backend interface {
	// Get fetches the value stored at (bucket, key). A nil value with a nil error
	// means the key does not exist.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put unconditionally stores value at (bucket, key).
	Put(ctx context.Context, bucket, key string, value []byte) error
	// Remove deletes (bucket, key) and returns the value that was stored there, if any.
	Remove(ctx context.Context, bucket, key string) ([]byte, error)

	// StartTransaction begins a transaction scoping subsequent Put/Remove calls on
	// this Backend value. Implementations that cannot offer real multi-key atomicity
	// may implement this as client-side buffering, as long as EndTransaction(false)
	// reliably undoes every buffered effect.
	StartTransaction(ctx context.Context) error
	// EndTransaction closes the current transaction. commit=false discards every
	// effect performed since StartTransaction; commit=true makes them durable.
	EndTransaction(ctx context.Context, commit bool) error

	// IsRunning reports whether the backend connection is usable.
	IsRunning(ctx context.Context) bool

	// SupportsAtomic reports whether PutIfAbsent/Replace/RemoveExpected are backed
	// by real compare-and-swap semantics rather than returning ErrNotAtomic.
	SupportsAtomic() bool
	// PutIfAbsent stores value at (bucket, key) only if no value is currently stored
	// there, returning the value that won the race (value itself on success).
	PutIfAbsent(ctx context.Context, bucket, key string, value []byte) ([]byte, error)
	// Replace atomically stores newValue at (bucket, key) iff the current value
	// equals oldValue byte for byte; reports whether the swap happened.
	Replace(ctx context.Context, bucket, key string, oldValue, newValue []byte) (bool, error)
	// RemoveExpected atomically deletes (bucket, key) iff the current value equals
	// expected byte for byte; reports whether the delete happened.
	RemoveExpected(ctx context.Context, bucket, key string, expected []byte) (bool, error)
}

// CancellationError marks a Backend failure whose root cause is the caller's context
// being canceled, distinguishing it from an ordinary transient backend fault. The
// stressor engine walks the error chain looking for this so cancellation during a
// backend call surfaces as cancellation rather than a retryable fault.
type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string { return e.Err.Error() }
func (e *CancellationError) Unwrap() error { return e.Err }

// SuspectError marks a backend failure attributed to a cluster member being
// suspected (e.g. a partition/view-change event), logged less severely than an
// ordinary fault but otherwise handled identically (rollback and replay).
type SuspectError struct {
	Err error
}

func (e *SuspectError) Error() string { return e.Err.Error() }
func (e *SuspectError) Unwrap() error { return e.Err }
