package runner

import (
	"github.com/roach88/unifiedrunner/internal/store"
)

// Records converts the result into store records. The file name is the
// path the file was loaded from; the description lives in Details.
func (r *Result) Records(path string) []store.Record {
	records := make([]store.Record, 0, len(r.Tests))
	for _, t := range r.Tests {
		details := map[string]any{
			"file":       r.File,
			"operations": t.Operations,
		}
		if t.Error != "" {
			details["error"] = t.Error
		}
		records = append(records, store.Record{
			Seq:         t.Seq,
			File:        path,
			Description: t.Test,
			Status:      string(t.Status),
			Reason:      t.Reason,
			Details:     details,
		})
	}
	return records
}

// PlanRecords converts eligibility decisions into store records with
// status "run" or "skip". seq is called once per decision.
func PlanRecords(path, file string, decisions []Decision, seq func() int64) []store.Record {
	records := make([]store.Record, 0, len(decisions))
	for _, d := range decisions {
		status := "run"
		if !d.Run {
			status = string(StatusSkip)
		}
		details := map[string]any{"file": file, "index": d.Index}
		if d.Clause != "" {
			details["clause"] = string(d.Clause)
		}
		records = append(records, store.Record{
			Seq:         seq(),
			File:        path,
			Description: d.Test,
			Status:      status,
			Reason:      d.Reason,
			Details:     details,
		})
	}
	return records
}
