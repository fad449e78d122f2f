package runner

import (
	"context"
	"fmt"

	"github.com/roach88/unifiedrunner/internal/requirement"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

// Plan evaluates the eligibility of every test case in file against env.
// A case runs only if it has no skipReason, some file-level requirement is
// satisfied and some case-level requirement is satisfied. File-level
// requirements are evaluated once.
//
// An error means the environment could not answer a query; it is never
// used to report ineligibility.
func Plan(ctx context.Context, file *testformat.TestFile, env requirement.Environment) ([]Decision, error) {
	fileVerdict, err := requirement.AnySatisfied(ctx, file.RunOnRequirements, env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Description, err)
	}

	decisions := make([]Decision, 0, len(file.Tests))
	for i, tc := range file.Tests {
		d, err := planCase(ctx, i, tc, fileVerdict, env)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", file.Description, tc.Description, err)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func planCase(ctx context.Context, index int, tc testformat.TestCase, fileVerdict requirement.Verdict, env requirement.Environment) (Decision, error) {
	d := Decision{Index: index, Test: tc.Description}

	if tc.SkipReason != nil {
		d.Reason = "skipReason: " + *tc.SkipReason
		return d, nil
	}
	if !fileVerdict.Eligible {
		d.Clause = fileVerdict.Clause
		d.Reason = "file requirements: " + fileVerdict.Reason
		return d, nil
	}

	v, err := requirement.AnySatisfied(ctx, tc.RunOnRequirements, env)
	if err != nil {
		return Decision{}, err
	}
	if !v.Eligible {
		d.Clause = v.Clause
		d.Reason = "test requirements: " + v.Reason
		return d, nil
	}

	d.Run = true
	return d, nil
}
