// Package radargun drives background workload generators ("stressors") against
// distributed key/value stores to prove correctness under concurrent modification,
// transactions, backend failures, and node loss.
//
// A stressor issues PUT/REMOVE operations while embedding a tamper-evident log of
// those operations inside the stored values themselves (see package logvalue). A
// separate, out of process checker is expected to scan the stored logs and certify
// that every operation was observed exactly once; this module owns everything on
// the writing side of that contract.
package radargun
