package stressor

import "time"

// OperationMix is the probability distribution LegacyLogic draws operations
// from. Log logics only ever issue Put/Remove and ignore this.
type OperationMix struct {
	Get    float64
	Put    float64
	Remove float64
}

// Options are the configuration values recognized by the core (spec.md §6).
type Options struct {
	// NumThreads, NumSlaves, SlaveIndex define the global thread-id space:
	// ThreadID = SlaveIndex*NumThreads + idx.
	NumThreads int
	NumSlaves  int
	SlaveIndex int

	// NumEntries is the key domain size used by SharedLogLogic.
	NumEntries int
	// EntrySize is the payload size for the legacy/load path.
	EntrySize int
	// TransactionSize is ops per transaction; <= 0 disables transactions.
	TransactionSize int
	// DelayBetweenRequests is the sleep between invoke() calls.
	DelayBetweenRequests time.Duration

	// UseLogValues is loaded by package config from use_log_values. Nothing
	// in this module reads it to choose a logic: the caller picks the logic
	// by constructing it, and cmd/radargun picks it from the configuration's
	// logic key.
	UseLogValues bool
	// SharedKeys is loaded by package config from shared_keys. Like
	// UseLogValues, nothing in this module reads it to choose a logic.
	SharedKeys bool

	// LogValueMaxSize is the threshold that triggers checker-driven shift/filter.
	LogValueMaxSize int
	// LogCounterUpdatePeriod is the checkpoint-write frequency in non-transactional mode.
	LogCounterUpdatePeriod int
	// IgnoreDeadCheckers enables the dead-checker bypass protocol.
	IgnoreDeadCheckers bool
	// LoadWithPutIfAbsent makes the load phase use conditional insert.
	LoadWithPutIfAbsent bool
	// LoadOnly exits the worker after the load phase.
	LoadOnly bool
	// OperationMix is the probability distribution for LegacyLogic.
	OperationMix OperationMix
	// BucketID namespaces every cache call this worker issues.
	BucketID string

	// MaxCauseChainDepth bounds findInterruptionCause's walk of an error's
	// cause chain (resolves spec.md §9's open question about cycles).
	MaxCauseChainDepth int
	// MaxCheckerWaitPolls bounds nextValue's checker-progress poll loop
	// (resolves spec.md §9's open question about non-termination).
	MaxCheckerWaitPolls int
	// CheckerPollInterval is the sleep between checker-progress polls.
	CheckerPollInterval time.Duration
}

// ThreadID computes this worker's global thread id from its slave index.
func (o Options) ThreadID(idx int) int {
	return o.SlaveIndex*o.NumThreads + idx
}

// WithDefaults fills zero-valued fields with the spec's default constants.
func (o Options) WithDefaults() Options {
	if o.MaxCauseChainDepth <= 0 {
		o.MaxCauseChainDepth = 32
	}
	if o.MaxCheckerWaitPolls <= 0 {
		o.MaxCheckerWaitPolls = 600
	}
	if o.CheckerPollInterval <= 0 {
		o.CheckerPollInterval = 100 * time.Millisecond
	}
	if o.LogCounterUpdatePeriod <= 0 {
		o.LogCounterUpdatePeriod = 1
	}
	return o
}
