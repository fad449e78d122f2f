package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/unifiedrunner/internal/environment"
	"github.com/roach88/unifiedrunner/internal/environment/mongoenv"
	"github.com/roach88/unifiedrunner/internal/requirement"
	"github.com/roach88/unifiedrunner/internal/runner"
	"github.com/roach88/unifiedrunner/internal/store"
	"github.com/roach88/unifiedrunner/internal/testformat"
	"github.com/roach88/unifiedrunner/internal/testutil"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	EnvProfile string // YAML environment profile
	URI        string // live deployment; defaults to MONGODB_URI
	ResultsDB  string // store the plan when set

	ids store.IDGenerator
}

// PlannedTest is the eligibility of one test case.
type PlannedTest struct {
	Test   string `json:"test"`
	Run    bool   `json:"run"`
	Clause string `json:"clause,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// PlannedFile is the plan of one test file.
type PlannedFile struct {
	Path        string        `json:"path"`
	Description string        `json:"description"`
	Tests       []PlannedTest `json:"tests"`
}

// PlanResult is the output of the plan command.
type PlanResult struct {
	RunID       string         `json:"run_id,omitempty"`
	Environment map[string]any `json:"environment"`
	Files       []PlannedFile  `json:"files"`
	Runnable    int            `json:"runnable"`
	Skipped     int            `json:"skipped"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlanCommand(rootOpts, store.UUIDv7Generator{})
}

func newPlanCommand(rootOpts *RootOptions, ids store.IDGenerator) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts, ids: ids}

	cmd := &cobra.Command{
		Use:   "plan <file>...",
		Short: "Decide which tests are eligible on an environment",
		Long: `Evaluate runOnRequirements and skipReason of every test case.

A test runs when it has no skipReason, one of the file's runOnRequirements
entries is satisfied and one of its own entries is satisfied.

The environment is read from --env-profile, or discovered from the
deployment at --uri (default: MONGODB_URI, then mongodb://localhost:27017).

Exit codes:
  0 - Plan produced
  1 - A test file is invalid
  2 - Command error (bad flags, unreachable deployment, results database)

Examples:
  unifiedrunner plan crud/*.yml --env-profile env/replset-7.0.yml
  unifiedrunner plan crud/*.yml --uri mongodb://localhost:27017 --results-db results.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.EnvProfile, "env-profile", "", "YAML environment profile")
	cmd.Flags().StringVar(&opts.URI, "uri", "", "connection string of a live deployment")
	cmd.Flags().StringVar(&opts.ResultsDB, "results-db", "", "SQLite database to record the plan in")

	return cmd
}

func runPlan(ctx context.Context, opts *PlanOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if opts.EnvProfile != "" && opts.URI != "" {
		return formatter.fail(ExitCommandError, ErrCodeInvalidArgs, "--env-profile and --uri are mutually exclusive", nil)
	}

	files := make([]*testformat.TestFile, 0, len(paths))
	for _, path := range paths {
		f, err := testformat.LoadFile(path)
		if err != nil {
			return formatter.fail(ExitFailure, ErrCodeInvalidFile, fmt.Sprintf("loading %s", path), err)
		}
		files = append(files, f)
	}

	env, closeEnv, err := openEnvironment(ctx, opts, logger)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeEnvironment, "environment unavailable", err)
	}
	defer closeEnv()

	result := PlanResult{Environment: snapshot(ctx, env), Files: make([]PlannedFile, 0, len(files))}
	decisionsByFile := make([][]runner.Decision, 0, len(files))
	for i, f := range files {
		decisions, err := runner.Plan(ctx, f, env)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodePlanFailed, fmt.Sprintf("planning %s", paths[i]), err)
		}
		decisionsByFile = append(decisionsByFile, decisions)

		pf := PlannedFile{Path: paths[i], Description: f.Description, Tests: make([]PlannedTest, 0, len(decisions))}
		for _, d := range decisions {
			pf.Tests = append(pf.Tests, PlannedTest{Test: d.Test, Run: d.Run, Clause: string(d.Clause), Reason: d.Reason})
			if d.Run {
				result.Runnable++
			} else {
				result.Skipped++
			}
			logger.Debug("planned test", "file", f.Description, "test", d.Test, "run", d.Run, "reason", d.Reason)
		}
		result.Files = append(result.Files, pf)
	}

	if opts.ResultsDB != "" {
		runID, err := recordPlan(ctx, opts, result, files, paths, decisionsByFile)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, "recording plan", err)
		}
		result.RunID = runID
		formatter.VerboseLog("recorded plan %s in %s", runID, opts.ResultsDB)
	}

	return formatter.Success(result, planText(result))
}

// openEnvironment returns the environment named by the flags and a function
// releasing it.
func openEnvironment(ctx context.Context, opts *PlanOptions, logger *slog.Logger) (requirement.Environment, func(), error) {
	if opts.EnvProfile != "" {
		env, err := environment.LoadProfile(opts.EnvProfile)
		if err != nil {
			return nil, nil, err
		}
		return env, func() {}, nil
	}

	uri := opts.URI
	if uri == "" {
		uri = environment.URIFromEnv()
	}
	env, err := mongoenv.Connect(ctx, uri, environment.ServerlessFromEnv(), logger)
	if err != nil {
		return nil, nil, err
	}
	return env, func() { _ = env.Close(context.Background()) }, nil
}

// snapshot records the facts a plan was made against. A topology that
// cannot be determined is left out; planning reports that error itself if
// a requirement needs it.
func snapshot(ctx context.Context, env requirement.Environment) map[string]any {
	snap := map[string]any{
		"auth":       env.AuthEnabled(),
		"serverless": env.Serverless(),
	}
	if v := env.ServerVersion(); v != nil {
		snap["serverVersion"] = v.String()
	}
	if topology, err := env.Topology(ctx); err == nil {
		snap["topology"] = string(topology)
	}
	return snap
}

func recordPlan(ctx context.Context, opts *PlanOptions, result PlanResult, files []*testformat.TestFile, paths []string, decisions [][]runner.Decision) (string, error) {
	st, err := store.Open(opts.ResultsDB)
	if err != nil {
		return "", err
	}
	defer st.Close()

	run, err := st.WriteRun(ctx, store.Run{ID: opts.ids.Generate(), Kind: store.KindPlan, Environment: result.Environment})
	if err != nil {
		return "", err
	}

	clock := testutil.NewDeterministicClock()
	var records []store.Record
	for i, f := range files {
		records = append(records, runner.PlanRecords(paths[i], f.Description, decisions[i], clock.Next)...)
	}
	if err := st.WriteResults(ctx, run.ID, records); err != nil {
		return "", err
	}
	return run.ID, nil
}

func planText(result PlanResult) string {
	var b strings.Builder
	for _, f := range result.Files {
		fmt.Fprintf(&b, "%s (%s)\n", f.Description, f.Path)
		for _, t := range f.Tests {
			if t.Run {
				fmt.Fprintf(&b, "  run   %s\n", t.Test)
				continue
			}
			fmt.Fprintf(&b, "  skip  %s: %s\n", t.Test, t.Reason)
		}
	}
	fmt.Fprintf(&b, "%d runnable, %d skipped", result.Runnable, result.Skipped)
	if result.RunID != "" {
		fmt.Fprintf(&b, "\nrecorded as %s", result.RunID)
	}
	return b.String()
}
