package runner

import (
	"github.com/roach88/unifiedrunner/internal/requirement"
)

// Status is the outcome of one test case.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Failure clauses reported in TestResult.Reason.
const (
	ReasonSetup        = "setup"
	ReasonOperation    = "operation"
	ReasonThread       = "thread"
	ReasonExpectEvents = "expectEvents"
	ReasonOutcome      = "outcome"
	ReasonTeardown     = "teardown"
)

// Decision is the eligibility of one test case.
type Decision struct {
	Index int
	Test  string
	Run   bool
	// Clause and Reason explain a skip. Clause is empty for skipReason.
	Clause requirement.Clause
	Reason string
}

// TestResult is the outcome of one test case.
type TestResult struct {
	Seq    int64  `json:"seq"`
	Test   string `json:"test"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	// Operations counts operations dispatched before the case ended.
	Operations int `json:"operations"`
}

// Result is the outcome of a test file.
type Result struct {
	File  string       `json:"file"`
	Tests []TestResult `json:"tests"`
}

// Counts returns the number of passed, failed and skipped cases.
func (r *Result) Counts() (pass, fail, skip int) {
	for _, t := range r.Tests {
		switch t.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusSkip:
			skip++
		}
	}
	return pass, fail, skip
}

// Passed reports whether no case failed.
func (r *Result) Passed() bool {
	_, fail, _ := r.Counts()
	return fail == 0
}
