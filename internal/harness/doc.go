// Package harness runs YAML scenarios against a fresh layout database.
//
// A scenario declares an initial document tree and a list of steps: input
// writes, structural edits, evaluations with expected values and counter
// deltas, parallel layout passes and statistics checks. Run executes the
// steps in order and returns a trace of what happened plus every
// expectation that did not hold. Traces serialize to canonical JSON and are
// compared against golden files in tests.
//
// Scenario files use strict decoding: unknown fields are rejected so a typo
// in an expectation cannot silently disable it.
package harness
