package store

import (
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run with a small fixed workload.
func createTestRun(name, token string, misses int64) Run {
	return Run{
		Token:  token,
		Name:   name,
		Params: Params{Nodes: 100, Fanout: 4, Mutations: 10, Workers: 2},
		Metrics: map[string]int64{
			"misses":   misses,
			"hits":     50,
			"pass_us":  1200,
			"patterns": 12,
		},
	}
}
