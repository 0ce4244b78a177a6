package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/layoutdb/internal/value"
)

// ErrNotFound is returned when no run matches a lookup.
var ErrNotFound = errors.New("run not found")

// Params describes the workload of a benchmark run.
type Params struct {
	Nodes     int `json:"nodes"`
	Fanout    int `json:"fanout"`
	Mutations int `json:"mutations"`
	Workers   int `json:"workers"`
}

// Run is one recorded benchmark.
type Run struct {
	ID      string           `json:"id"`    // content-addressed, set by SaveRun
	Token   string           `json:"token"` // unique per invocation (UUIDv7)
	Name    string           `json:"name"`
	Seq     int64            `json:"seq"` // logical order, set by SaveRun
	Params  Params           `json:"params"`
	Metrics map[string]int64 `json:"metrics"`
}

// RunID computes the content-addressed ID of r. ID and Seq are not part of
// the content.
func RunID(r Run) (string, error) {
	return value.ContentID(value.DomainRun, runRecord(r))
}

// SaveRun stores r and returns it with ID and Seq filled in. Saving a run
// whose content is already stored returns the stored run unchanged.
func (s *Store) SaveRun(ctx context.Context, r Run) (Run, error) {
	if r.Name == "" {
		return Run{}, errors.New("save run: empty name")
	}
	id, err := RunID(r)
	if err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	params, err := marshalParams(r.Params)
	if err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	metrics, err := marshalMetrics(r.Metrics)
	if err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("save run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return Run{}, fmt.Errorf("save run: next seq: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, token, name, seq, params, metrics)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, r.Token, r.Name, seq, params, metrics)
	if err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return Run{}, fmt.Errorf("save run: rows affected: %w", err)
	}

	if inserted == 0 {
		existing, err := getRun(ctx, tx, id)
		if err != nil {
			return Run{}, fmt.Errorf("save run: read existing: %w", err)
		}
		return existing, tx.Commit()
	}
	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("save run: commit: %w", err)
	}

	r.ID = id
	r.Seq = seq
	return r, nil
}

// GetRun returns the run with the given ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	return getRun(ctx, s.db, id)
}

// LatestRun returns the run of the given name with the highest seq.
func (s *Store) LatestRun(ctx context.Context, name string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token, name, seq, params, metrics
		FROM runs
		WHERE name = ?
		ORDER BY seq DESC
		LIMIT 1
	`, name)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run %q: %w", name, ErrNotFound)
	}
	return r, err
}

// ListRuns returns runs ordered by seq ascending. An empty name lists every
// run; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, name string, limit int) ([]Run, error) {
	query := `
		SELECT id, token, name, seq, params, metrics
		FROM runs
		WHERE (? = '' OR name = ?)
		ORDER BY seq ASC, id COLLATE BINARY ASC`
	args := []any{name, name}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRun(ctx context.Context, q queryRower, id string) (Run, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, token, name, seq, params, metrics
		FROM runs
		WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r       Run
		params  string
		metrics string
	)
	if err := row.Scan(&r.ID, &r.Token, &r.Name, &r.Seq, &params, &metrics); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	if r.Params, err = unmarshalParams(params); err != nil {
		return Run{}, err
	}
	if r.Metrics, err = unmarshalMetrics(metrics); err != nil {
		return Run{}, err
	}
	return r, nil
}
