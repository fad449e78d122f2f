package store

import (
	"context"
	"fmt"
)

// WriteRun inserts run and returns it with its assigned Seq. Writing an id
// that already exists is a no-op that returns the stored run.
func (s *Store) WriteRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		return Run{}, fmt.Errorf("write run: empty id")
	}
	if run.Kind != KindPlan && run.Kind != KindRun {
		return Run{}, fmt.Errorf("write run: unknown kind %q", run.Kind)
	}
	envJSON, err := marshalObject("environment", run.Environment)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, environment, seq)
		SELECT ?, ?, ?, COALESCE(MAX(seq), 0) + 1 FROM runs WHERE true
		ON CONFLICT(id) DO NOTHING
	`, run.ID, string(run.Kind), envJSON)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	return s.ReadRun(ctx, run.ID)
}

// WriteResults appends records to the run identified by runID in a single
// transaction. Each record's RunID is overwritten with runID. Records whose
// (run, seq) pair already exists are ignored, so retrying a write is safe.
func (s *Store) WriteResults(ctx context.Context, runID string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write results: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (run_id, seq, file, description, status, reason, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write results: prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		details, err := marshalObject("details", rec.Details)
		if err != nil {
			return fmt.Errorf("write results: seq %d: %w", rec.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			runID,
			rec.Seq,
			rec.File,
			rec.Description,
			rec.Status,
			rec.Reason,
			details,
		); err != nil {
			return fmt.Errorf("write results: seq %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write results: commit: %w", err)
	}
	return nil
}
