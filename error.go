package radargun

import "fmt"

// ErrorCode enumerates this module's error categories.
type ErrorCode int

const (
	// Unknown represents an unspecified error condition.
	Unknown ErrorCode = iota
	// LockAcquisitionFailure indicates failure to acquire a required lock/CAS race.
	LockAcquisitionFailure
	// FailoverQualifiedError marks an error that qualifies the operation for failover handling.
	FailoverQualifiedError = 77 + iota
	// ConsistencyViolation marks a stored value found in a shape the protocol never allows,
	// e.g. a log value of the wrong concrete type, or a checked remove whose prior value
	// didn't match what was expected. These are fatal: the thread does not mask them.
	ConsistencyViolation
)

// Error carries a code, the wrapped error and optional user data.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

// Error implements the error interface by formatting the code, user data, and wrapped error details.
func (e Error) Error() string {
	return fmt.Errorf("error code: %d, user data: %v, details: %w", e.Code, e.UserData, e.Err).Error()
}

// Unwrap allows errors.Is/errors.As to reach the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}
