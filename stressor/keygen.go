package stressor

import "strconv"

// KeyGenerator maps an absolute numeric key id to the opaque key string
// handed to cache.Backend. Implementations must be pure and stable across
// restarts (spec.md §6).
type KeyGenerator interface {
	GenerateKey(id int64) string
}

// DecimalKeyGenerator is the default KeyGenerator: the decimal string of id.
// It is pure and stable, matching the contract without imposing any real
// sharding scheme, which is out of scope for the core (spec.md §1).
type DecimalKeyGenerator struct{}

func (DecimalKeyGenerator) GenerateKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// LivenessOracle reports whether checker (slave) i is currently alive.
// Consulted only when Options.IgnoreDeadCheckers is enabled (spec.md §6).
type LivenessOracle interface {
	IsSlaveAlive(i int) bool
}

// AlwaysAlive is a LivenessOracle that reports every slave alive; useful
// when IgnoreDeadCheckers is disabled or in tests that don't exercise the
// dead-checker bypass.
type AlwaysAlive struct{}

func (AlwaysAlive) IsSlaveAlive(int) bool { return true }

// StaticLiveness is a LivenessOracle backed by a fixed set of dead slave
// indices, used by tests to exercise the dead-checker bypass deterministically.
type StaticLiveness struct {
	Dead map[int]bool
}

func (s StaticLiveness) IsSlaveAlive(i int) bool {
	return !s.Dead[i]
}
