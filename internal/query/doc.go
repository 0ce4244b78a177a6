// Package query implements the incremental, demand-driven computation core.
//
// A Database owns externally written inputs, memoized derived values, an
// interned set of dependency patterns and a monotonic revision clock.
// Derived values are computed on demand by query bodies registered in a
// closed Registry. Every read a body performs goes through its *Ctx and is
// recorded as a Dependency; the recorded set is interned by the
// PatternCache and stored alongside the value and its stamp.
//
// Evaluation is pull-based. Advancing the revision never recomputes
// anything: a cached entry is reused when every dependency in its pattern
// is stamped no later than the entry itself, and recomputed otherwise.
//
// Phases: writes happen inside Mutate (or SetInput, a batch of one) and
// are exclusive; evaluation is concurrent. The Database enforces this
// ordering with a single coordinator-level phase lock, never with
// per-entry locks.
package query
