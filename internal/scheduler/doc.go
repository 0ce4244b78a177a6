// Package scheduler partitions a pass over the document into independent
// WorkUnits and runs them on a fixed worker pool.
//
// A unit is one formatting-context subtree: its root plus every descendant
// that is not itself a boundary. Units are grouped into waves by nesting
// depth. A wave is dispatched to the pool and joined before the next wave
// starts, so reads that cross a unit boundary (an ancestor summing its
// descendants' intrinsic sizes, a nested context reading its container's
// width) always find the other unit's results already computed.
//
// Two units of one wave must never compute the same (kind, key) slot. The
// boundary predicate is trusted to guarantee this; with the overlap check
// enabled (default in builds tagged layoutdb_debug) every computed slot is
// recorded per unit and a collision fails the pass with OVERLAP_VIOLATION.
package scheduler
