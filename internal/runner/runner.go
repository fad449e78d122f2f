package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/unifiedrunner/internal/expect"
	"github.com/roach88/unifiedrunner/internal/match"
	"github.com/roach88/unifiedrunner/internal/requirement"
	"github.com/roach88/unifiedrunner/internal/testformat"
	"github.com/roach88/unifiedrunner/internal/testutil"
	"github.com/roach88/unifiedrunner/internal/worker"
)

// Operation names handled by the runner rather than the executor.
const (
	OpRunOnThread   = "runOnThread"
	OpWaitForThread = "waitForThread"
)

// Clock hands out the logical sequence numbers that order results.
type Clock interface {
	Next() int64
}

// Runner executes test files through an Executor.
type Runner struct {
	exec   Executor
	env    requirement.Environment
	logger *slog.Logger
	clock  Clock
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithClock sets the sequence source. The default starts at 1 and is
// shared by every Run call on the runner.
func WithClock(clock Clock) Option {
	return func(r *Runner) { r.clock = clock }
}

// New returns a runner evaluating requirements against env and executing
// operations with exec.
func New(exec Executor, env requirement.Environment, opts ...Option) *Runner {
	r := &Runner{
		exec:   exec,
		env:    env,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:  testutil.NewDeterministicClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// caseError ends a test case. reason is one of the Reason constants.
type caseError struct {
	reason string
	err    error
}

// Run plans and executes every test case of file. Ineligible cases are
// reported as skipped. A failed case does not stop the file.
//
// Run returns an error only when the environment cannot be queried or ctx
// is cancelled; in the latter case the results gathered so far are
// returned with it.
func (r *Runner) Run(ctx context.Context, file *testformat.TestFile) (*Result, error) {
	decisions, err := Plan(ctx, file, r.env)
	if err != nil {
		return nil, err
	}

	result := &Result{File: file.Description, Tests: make([]TestResult, 0, len(decisions))}
	for _, d := range decisions {
		tc := file.Tests[d.Index]
		tr := TestResult{Seq: r.clock.Next(), Test: tc.Description}
		logger := r.logger.With("file", file.Description, "test", tc.Description)

		if !d.Run {
			tr.Status = StatusSkip
			tr.Reason = d.Reason
			logger.Info("test skipped", "reason", d.Reason)
			result.Tests = append(result.Tests, tr)
			continue
		}

		if cerr := r.runCase(ctx, file, tc, &tr, logger); cerr != nil {
			tr.Status = StatusFail
			tr.Reason = cerr.reason
			tr.Error = cerr.err.Error()
			logger.Info("test failed", "reason", cerr.reason, "error", cerr.err)
		} else {
			tr.Status = StatusPass
			logger.Info("test passed", "operations", tr.Operations)
		}
		result.Tests = append(result.Tests, tr)

		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%s: %w", file.Description, err)
		}
	}
	return result, nil
}

// runCase runs one eligible case. Teardown runs even when setup or an
// operation failed; its error is reported only if nothing failed earlier.
func (r *Runner) runCase(ctx context.Context, file *testformat.TestFile, tc testformat.TestCase, tr *TestResult, logger *slog.Logger) *caseError {
	cerr := r.runSteps(ctx, file, tc, tr, logger)
	if err := r.exec.Teardown(ctx); err != nil && cerr == nil {
		cerr = &caseError{reason: ReasonTeardown, err: err}
	}
	return cerr
}

func (r *Runner) runSteps(ctx context.Context, file *testformat.TestFile, tc testformat.TestCase, tr *TestResult, logger *slog.Logger) *caseError {
	if err := r.exec.Setup(ctx, file.CreateEntities, file.InitialData); err != nil {
		return &caseError{reason: ReasonSetup, err: err}
	}

	threads := worker.NewPool(ctx, logger)
	for _, e := range file.EntitiesOfKind(testformat.EntityThread) {
		if _, err := threads.Start(e.EntityID()); err != nil {
			_ = threads.StopAll(ctx)
			return &caseError{reason: ReasonSetup, err: err}
		}
	}

	cerr := r.runOperations(ctx, tc, threads, tr, logger)
	// Threads the test never waited for are drained here so their
	// failures still count.
	stopErr := threads.StopAll(ctx)
	if cerr != nil {
		return cerr
	}
	if stopErr != nil {
		return &caseError{reason: ReasonThread, err: stopErr}
	}

	for _, exp := range tc.ExpectEvents {
		if err := expect.VerifyEvents(exp, r.exec.Events(exp.Client), tc.Description); err != nil {
			return &caseError{reason: ReasonExpectEvents, err: err}
		}
	}
	if err := expect.VerifyOutcome(ctx, tc.Outcome, r.exec, tc.Description); err != nil {
		return &caseError{reason: ReasonOutcome, err: err}
	}
	return nil
}

func (r *Runner) runOperations(ctx context.Context, tc testformat.TestCase, threads *worker.Pool, tr *TestResult, logger *slog.Logger) *caseError {
	for i, op := range tc.Operations {
		label := fmt.Sprintf("%s: operation %d (%s)", tc.Description, i, op.Name)
		tr.Operations++
		logger.Debug("running operation", "index", i, "name", op.Name, "object", op.Object)

		if op.Object == testformat.TestRunnerObject {
			switch op.Name {
			case OpRunOnThread:
				if err := r.runOnThread(threads, op, label); err != nil {
					return &caseError{reason: ReasonThread, err: err}
				}
				continue
			case OpWaitForThread:
				if err := waitForThread(ctx, threads, op, label); err != nil {
					return &caseError{reason: ReasonThread, err: err}
				}
				continue
			}
		}

		if err := r.execute(ctx, op, label); err != nil {
			return &caseError{reason: ReasonOperation, err: err}
		}
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, op testformat.Operation, label string) error {
	result, err := r.exec.Execute(ctx, op)
	return CheckOperation(op, result, err, label)
}

// CheckOperation compares what an operation returned with what it
// declared: its expectError if present, otherwise no error and, when
// expectResult is set, a matching result. ignoreResultAndError disables
// both checks.
func CheckOperation(op testformat.Operation, result any, err error, label string) error {
	if op.IgnoreResultAndError != nil && *op.IgnoreResultAndError {
		return nil
	}
	if op.ExpectError != nil {
		return expect.VerifyError(*op.ExpectError, err, label)
	}
	if err != nil {
		return fmt.Errorf("%s: unexpected error: %w", label, err)
	}
	if op.ExpectResult != nil {
		return match.ResultsMatch(op.ExpectResult, result, label)
	}
	return nil
}

// runOnThread schedules the nested operation on a worker. Its failure
// surfaces when the thread is waited for.
func (r *Runner) runOnThread(threads *worker.Pool, op testformat.Operation, label string) error {
	w, err := threadArgument(threads, op, label)
	if err != nil {
		return err
	}
	doc, ok := op.Arguments["operation"].(testformat.Document)
	if !ok {
		return fmt.Errorf("%s: operation argument must be a document", label)
	}
	nested, err := testformat.DecodeOperation(doc)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}

	nestedLabel := fmt.Sprintf("%s: %s on %s", label, nested.Name, w.ID())
	return w.Submit(nested.Name, func(ctx context.Context) error {
		return r.execute(ctx, nested, nestedLabel)
	})
}

// waitForThread stops a worker after the operations queued on it have run
// and reports their failures.
func waitForThread(ctx context.Context, threads *worker.Pool, op testformat.Operation, label string) error {
	w, err := threadArgument(threads, op, label)
	if err != nil {
		return err
	}
	if err := w.Stop(ctx); err != nil {
		return fmt.Errorf("%s: thread %s: %w", label, w.ID(), err)
	}
	return nil
}

func threadArgument(threads *worker.Pool, op testformat.Operation, label string) (*worker.Worker, error) {
	id, ok := op.Arguments["thread"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%s: thread argument must be a non-empty string", label)
	}
	w, ok := threads.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: unknown thread %q", label, id)
	}
	return w, nil
}
