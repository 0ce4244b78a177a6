//go:build layoutdb_debug

package scheduler

const defaultOverlapCheck = true
