package stressor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharedcode/radargun"
	"github.com/sharedcode/radargun/cache"
)

// NewConsistencyViolation wraps a fatal, unmaskable consistency fault (stored
// value had an unexpected shape, or an expected-value remove mismatched) as
// the single error kind spec.md §7 says must not be silently retried.
func NewConsistencyViolation(format string, args ...any) error {
	return radargun.Error{
		Code: radargun.ConsistencyViolation,
		Err:  fmt.Errorf(format, args...),
	}
}

// IsConsistencyViolation reports whether err (or its cause chain) is a fatal
// consistency violation.
func IsConsistencyViolation(err error) bool {
	var e radargun.Error
	return errors.As(err, &e) && e.Code == radargun.ConsistencyViolation
}

// isFailoverFault reports whether err indicates the backend's underlying
// storage is permanently unhealthy (disk full, read-only filesystem, media
// I/O error) rather than an ordinary transient contention fault. Retrying
// such a fault forever would mask a condition the backend cannot recover
// from on its own.
func isFailoverFault(err error) bool {
	return radargun.IsFailoverQualifiedIOError(err)
}

// isSuspectFault reports whether err (or its cause chain) is a backend
// member-suspected fault, logged less severely but otherwise handled as an
// ordinary transient fault.
func isSuspectFault(err error) bool {
	var e *cache.SuspectError
	return errors.As(err, &e)
}

// findInterruptionCause walks err's cause chain looking for context
// cancellation, bounded by maxDepth so an adversarial cycle in the chain
// cannot loop forever (resolves spec.md §9's open question about the
// source's self-parent-only cycle check).
func findInterruptionCause(err error, maxDepth int) bool {
	for depth := 0; err != nil && depth < maxDepth; depth++ {
		// Each step inspects only the current link; errors.Is/As would walk
		// the rest of the chain without any bound.
		if err == context.Canceled || err == context.DeadlineExceeded {
			return true
		}
		if _, ok := err.(*cache.CancellationError); ok {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
