package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/unifiedrunner/internal/store"
)

// RunSummary lists one stored run.
type RunSummary struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Seq         int64          `json:"seq"`
	Environment map[string]any `json:"environment"`
}

// RunResults is the detail view of one stored run.
type RunResults struct {
	Run     RunSummary     `json:"run"`
	Counts  map[string]int `json:"counts"`
	Total   int            `json:"total"`
	Results []StoredResult `json:"results"`
}

// StoredResult is one stored test outcome.
type StoredResult struct {
	Seq     int64          `json:"seq"`
	File    string         `json:"file"`
	Test    string         `json:"test"`
	Status  string         `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results <db> [run-id]",
		Short: "Show stored plans and runs",
		Long: `List the runs recorded in a results database, or show the results
of one run in sequence order.

Exit codes:
  0 - Success
  2 - Database or run not found`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 2 {
				runID = args[1]
			}
			return runResults(cmd.Context(), rootOpts, args[0], runID, cmd)
		},
	}

	return cmd
}

func runResults(ctx context.Context, opts *RootOptions, dbPath, runID string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts, cmd)

	// Open would create a missing database; reading one that does not exist
	// is a mistake.
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", dbPath), nil)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "opening results database", err)
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, "listing runs", err)
		}
		summaries := make([]RunSummary, 0, len(runs))
		for _, r := range runs {
			summaries = append(summaries, toRunSummary(r))
		}
		return formatter.Success(summaries, runsText(summaries))
	}

	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.fail(ExitCommandError, ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", runID), nil)
		}
		return formatter.fail(ExitCommandError, ErrCodeStore, "reading run", err)
	}
	records, err := st.ReadResults(ctx, runID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "reading results", err)
	}
	sum, err := st.Summary(ctx, runID)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeStore, "summarizing run", err)
	}

	out := RunResults{
		Run:     toRunSummary(run),
		Counts:  sum.Counts,
		Total:   sum.Total,
		Results: make([]StoredResult, 0, len(records)),
	}
	for _, rec := range records {
		out.Results = append(out.Results, StoredResult{
			Seq:     rec.Seq,
			File:    rec.File,
			Test:    rec.Description,
			Status:  rec.Status,
			Reason:  rec.Reason,
			Details: rec.Details,
		})
	}
	return formatter.Success(out, runResultsText(out))
}

func toRunSummary(r store.Run) RunSummary {
	return RunSummary{ID: r.ID, Kind: string(r.Kind), Seq: r.Seq, Environment: r.Environment}
}

func runsText(runs []RunSummary) string {
	if len(runs) == 0 {
		return "no runs recorded"
	}
	var b strings.Builder
	for i, r := range runs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-4d %-4s %s", r.Seq, r.Kind, r.ID)
	}
	return b.String()
}

func runResultsText(out RunResults) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s\n", out.Run.Kind, out.Run.ID)
	for _, r := range out.Results {
		fmt.Fprintf(&b, "  %-4d %-4s %s: %s", r.Seq, r.Status, r.File, r.Test)
		if r.Reason != "" {
			fmt.Fprintf(&b, " (%s)", r.Reason)
		}
		b.WriteString("\n")
	}

	statuses := make([]string, 0, len(out.Counts))
	for s := range out.Counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", out.Counts[s], s))
	}
	fmt.Fprintf(&b, "%d total", out.Total)
	if len(parts) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(parts, ", "))
	}
	return b.String()
}
