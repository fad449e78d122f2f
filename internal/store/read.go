package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReadRun returns the run with the given id, or ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, environment, seq FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns all runs ordered by seq.
//
// Returns an empty slice (not nil) when the store holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, environment, seq
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadResults returns the results of a run ordered by seq. An unknown run
// id yields ErrRunNotFound.
func (s *Store) ReadResults(ctx context.Context, runID string) ([]Record, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, file, description, status, reason, details
		FROM results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec     Record
			details string
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.File, &rec.Description, &rec.Status, &rec.Reason, &details); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if rec.Details, err = unmarshalObject("details", details); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return records, nil
}

// Summary counts the results of a run by status.
func (s *Store) Summary(ctx context.Context, runID string) (Summary, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return Summary{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM results
		WHERE run_id = ?
		GROUP BY status
		ORDER BY status
	`, runID)
	if err != nil {
		return Summary{}, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	sum := Summary{RunID: runID, Counts: map[string]int{}}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		sum.Counts[status] = n
		sum.Total += n
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate summary: %w", err)
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run  Run
		kind string
		env  string
	)
	if err := row.Scan(&run.ID, &kind, &env, &run.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Kind = RunKind(kind)
	environment, err := unmarshalObject("environment", env)
	if err != nil {
		return Run{}, err
	}
	run.Environment = environment
	return run, nil
}
