package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='runs'").Scan(&name)
	if err != nil {
		t.Errorf("runs table not found after idempotent opens: %v", err)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.expected); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_MigrationCreatesIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_runs_name_seq'",
	).Scan(&name)
	if err != nil {
		t.Errorf("index not created: %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on empty store = %v", err)
	}
}

// ============================================================================
// Runs
// ============================================================================

func TestSaveRun_AssignsIDAndSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.SaveRun(ctx, createTestRun("tree", "tok-1", 100))
	if err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}
	second, err := s.SaveRun(ctx, createTestRun("tree", "tok-2", 90))
	if err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}

	if first.ID == "" || len(first.ID) != 64 {
		t.Errorf("ID = %q, want 64 hex chars", first.ID)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if first.ID == second.ID {
		t.Error("distinct runs share an ID")
	}
}

func TestSaveRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := createTestRun("tree", "tok-1", 100)

	first, err := s.SaveRun(ctx, run)
	if err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}
	again, err := s.SaveRun(ctx, run)
	if err != nil {
		t.Fatalf("second SaveRun() failed: %v", err)
	}

	if again.ID != first.ID || again.Seq != first.Seq {
		t.Errorf("resave = (%s, %d), want (%s, %d)", again.ID, again.Seq, first.ID, first.Seq)
	}

	runs, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("len(runs) = %d, want 1", len(runs))
	}
}

func TestSaveRun_EmptyName(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.SaveRun(context.Background(), Run{Token: "x"}); err == nil {
		t.Error("SaveRun() with empty name succeeded")
	}
}

func TestRunID_ContentAddressed(t *testing.T) {
	a := createTestRun("tree", "tok-1", 100)
	b := createTestRun("tree", "tok-1", 100)
	b.Seq = 99
	b.ID = "ignored"

	idA, err := RunID(a)
	if err != nil {
		t.Fatalf("RunID() failed: %v", err)
	}
	idB, err := RunID(b)
	if err != nil {
		t.Fatalf("RunID() failed: %v", err)
	}
	if idA != idB {
		t.Errorf("IDs differ for identical content: %s vs %s", idA, idB)
	}

	b.Metrics["misses"] = 101
	idC, _ := RunID(b)
	if idC == idA {
		t.Error("ID unchanged after metric change")
	}
}

func TestGetRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveRun(ctx, createTestRun("tree", "tok-1", 100))
	if err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}

	got, err := s.GetRun(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Name != "tree" || got.Token != "tok-1" || got.Seq != saved.Seq {
		t.Errorf("GetRun() = %+v", got)
	}
	if got.Params != saved.Params {
		t.Errorf("Params = %+v, want %+v", got.Params, saved.Params)
	}
	if got.Metrics["misses"] != 100 || len(got.Metrics) != 4 {
		t.Errorf("Metrics = %v", got.Metrics)
	}

	_, err = s.GetRun(ctx, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLatestRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"tree", "wide", "tree"} {
		if _, err := s.SaveRun(ctx, createTestRun(name, string(rune('a'+i)), int64(100+i))); err != nil {
			t.Fatalf("SaveRun() failed: %v", err)
		}
	}

	latest, err := s.LatestRun(ctx, "tree")
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if latest.Seq != 3 || latest.Metrics["misses"] != 102 {
		t.Errorf("LatestRun() = seq %d misses %d, want seq 3 misses 102", latest.Seq, latest.Metrics["misses"])
	}

	_, err = s.LatestRun(ctx, "deep")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestRun(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListRuns_FilterAndLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, name := range []string{"tree", "wide", "tree", "tree"} {
		if _, err := s.SaveRun(ctx, createTestRun(name, string(rune('a'+i)), 100)); err != nil {
			t.Fatalf("SaveRun() failed: %v", err)
		}
	}

	all, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(all) = %d, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Seq >= all[i].Seq {
			t.Errorf("runs not ordered by seq: %d then %d", all[i-1].Seq, all[i].Seq)
		}
	}

	trees, err := s.ListRuns(ctx, "tree", 2)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(trees) != 2 || trees[0].Seq != 1 || trees[1].Seq != 3 {
		t.Errorf("ListRuns(tree, 2) = %+v", trees)
	}

	none, err := s.ListRuns(ctx, "deep", 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("ListRuns(missing) = %v, want empty slice", none)
	}
}

// ============================================================================
// Compare
// ============================================================================

func TestCompare_Regressions(t *testing.T) {
	base := Run{Metrics: map[string]int64{"misses": 100, "pass_us": 1000, "hits": 0, "old": 5}}
	cur := Run{Metrics: map[string]int64{"misses": 105, "pass_us": 1500, "hits": 10, "new": 1}}

	deltas := Compare(base, cur, 0.10)
	names := make([]string, len(deltas))
	for i, d := range deltas {
		names[i] = d.Metric
	}
	want := []string{"hits", "misses", "new", "old", "pass_us"}
	if len(names) != len(want) {
		t.Fatalf("metrics = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("metrics = %v, want %v", names, want)
		}
	}

	byName := map[string]Delta{}
	for _, d := range deltas {
		byName[d.Metric] = d
	}
	if byName["misses"].Regression {
		t.Error("5% growth flagged at 10% threshold")
	}
	if !byName["pass_us"].Regression || byName["pass_us"].Change != 0.5 {
		t.Errorf("pass_us = %+v, want regression with change 0.5", byName["pass_us"])
	}
	if byName["hits"].Regression || byName["hits"].Change != 0 {
		t.Errorf("hits with zero baseline = %+v", byName["hits"])
	}
	if !byName["new"].Missing || !byName["old"].Missing {
		t.Error("one-sided metrics not marked missing")
	}

	regs := Regressions(deltas)
	if len(regs) != 1 || regs[0].Metric != "pass_us" {
		t.Errorf("Regressions() = %+v", regs)
	}
}
