// Package requirement decides whether a test environment satisfies the
// runOnRequirements declared by a test file or test case.
package requirement

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/unifiedrunner/internal/match"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

// Environment describes the deployment tests run against.
//
// Topology may query the deployment and block; the remaining methods return
// snapshots taken when the environment was built.
type Environment interface {
	ServerVersion() *semver.Version
	Topology(ctx context.Context) (testformat.Topology, error)
	ServerParameters() testformat.Document
	AuthEnabled() bool
	Serverless() bool
}

// Clause names the part of a requirement that rejected an environment.
type Clause string

const (
	ClauseMinServerVersion Clause = "minServerVersion"
	ClauseMaxServerVersion Clause = "maxServerVersion"
	ClauseTopologies       Clause = "topologies"
	ClauseServerParameters Clause = "serverParameters"
	ClauseServerless       Clause = "serverless"
	ClauseAuth             Clause = "auth"
)

// Verdict is the outcome of evaluating requirements. Clause and Reason are
// empty when Eligible is true.
type Verdict struct {
	Eligible bool
	Clause   Clause
	Reason   string
}

func eligible() Verdict { return Verdict{Eligible: true} }

func reject(clause Clause, format string, args ...any) Verdict {
	return Verdict{Clause: clause, Reason: fmt.Sprintf(format, args...)}
}

// CanRunOn reports whether env satisfies every clause present in req.
func CanRunOn(ctx context.Context, req testformat.RunOnRequirement, env Environment) (bool, error) {
	v, err := Evaluate(ctx, req, env)
	if err != nil {
		return false, err
	}
	return v.Eligible, nil
}

// Evaluate checks the clauses of req in a fixed order and stops at the first
// one env does not satisfy. Absent clauses impose no constraint.
//
// An error means the environment could not be queried, which is distinct
// from the environment being ineligible. A version bound that is not a valid
// version is a bug in the test file and panics.
func Evaluate(ctx context.Context, req testformat.RunOnRequirement, env Environment) (Verdict, error) {
	if req.MinServerVersion != nil || req.MaxServerVersion != nil {
		version := env.ServerVersion()
		if version == nil {
			return Verdict{}, fmt.Errorf("server version is unknown")
		}
		release := releaseOf(version)

		if req.MinServerVersion != nil {
			if !mustConstraint(">= " + *req.MinServerVersion).Check(release) {
				return reject(ClauseMinServerVersion, "server version %s is lower than minServerVersion %s", version, *req.MinServerVersion), nil
			}
		}
		if req.MaxServerVersion != nil {
			if !mustConstraint("<= " + *req.MaxServerVersion).Check(release) {
				return reject(ClauseMaxServerVersion, "server version %s is higher than maxServerVersion %s", version, *req.MaxServerVersion), nil
			}
		}
	}

	if req.Topologies != nil {
		topology, err := env.Topology(ctx)
		if err != nil {
			return Verdict{}, fmt.Errorf("failed to determine topology: %w", err)
		}
		if !slices.Contains(req.Topologies, topology) {
			return reject(ClauseTopologies, "topology %s is not one of %v", topology, req.Topologies), nil
		}
	}

	if req.ServerParameters != nil {
		if err := match.DocumentsMatch(req.ServerParameters, env.ServerParameters(), false, "serverParameters"); err != nil {
			return reject(ClauseServerParameters, "%s", err.Error()), nil
		}
	}

	if req.Serverless != nil && !req.Serverless.CanRun(env.Serverless()) {
		return reject(ClauseServerless, "serverless %s does not allow serverless=%t", *req.Serverless, env.Serverless()), nil
	}

	if req.Auth != nil && *req.Auth != env.AuthEnabled() {
		return reject(ClauseAuth, "test requires auth=%t, deployment has auth=%t", *req.Auth, env.AuthEnabled()), nil
	}

	return eligible(), nil
}

// AnySatisfied evaluates a list of requirements as a disjunction. An empty
// list is always satisfied. When no entry is satisfied the verdict reason
// lists every entry's reason.
func AnySatisfied(ctx context.Context, reqs []testformat.RunOnRequirement, env Environment) (Verdict, error) {
	if len(reqs) == 0 {
		return eligible(), nil
	}

	reasons := make([]string, 0, len(reqs))
	var last Verdict
	for i, req := range reqs {
		v, err := Evaluate(ctx, req, env)
		if err != nil {
			return Verdict{}, fmt.Errorf("runOnRequirements[%d]: %w", i, err)
		}
		if v.Eligible {
			return v, nil
		}
		last = v
		reasons = append(reasons, fmt.Sprintf("[%d] %s", i, v.Reason))
	}

	if len(reqs) == 1 {
		return last, nil
	}
	return Verdict{
		Clause: last.Clause,
		Reason: "no runOnRequirements entry satisfied: " + strings.Join(reasons, "; "),
	}, nil
}

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(fmt.Sprintf("requirement: invalid version bound %q: %v", s, err))
	}
	return c
}

// releaseOf drops prerelease and build metadata so that a release candidate
// of x.y.z satisfies the same bounds as x.y.z.
func releaseOf(v *semver.Version) *semver.Version {
	if v.Prerelease() == "" && v.Metadata() == "" {
		return v
	}
	return semver.New(v.Major(), v.Minor(), v.Patch(), "", "")
}
