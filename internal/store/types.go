package store

import "errors"

// RunKind distinguishes eligibility plans from executed runs.
type RunKind string

const (
	KindPlan RunKind = "plan"
	KindRun  RunKind = "run"
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Run is one stored invocation of the tool.
type Run struct {
	ID   string
	Kind RunKind
	// Environment is a snapshot of the facts requirements were evaluated
	// against (server version, topology, ...).
	Environment map[string]any
	// Seq is assigned by WriteRun and orders runs.
	Seq int64
}

// Record is the stored outcome of one test case.
type Record struct {
	RunID       string
	Seq         int64
	File        string
	Description string
	// Status is "pass", "fail" or "skip" for runs and "run" or "skip" for
	// plans.
	Status  string
	Reason  string
	Details map[string]any
}

// Summary counts a run's results by status.
type Summary struct {
	RunID  string
	Total  int
	Counts map[string]int
}
