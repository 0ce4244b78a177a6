// Package store keeps the history of benchmark runs in SQLite.
//
// A run records the parameters of one `layoutdb bench` invocation and the
// statistics it measured. Runs are content-addressed: the ID is a
// domain-separated SHA-256 of the run's canonical JSON, so saving the same
// run twice is a no-op. Ordering is by the logical seq column only; wall
// clock time is never stored.
//
// The database is opened in WAL mode and the schema is migrated forward
// using PRAGMA user_version.
package store
