package requirement

import (
	"context"
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/unifiedrunner/internal/testformat"
)

type fakeEnv struct {
	version     string
	topology    testformat.Topology
	topologyErr error
	params      testformat.Document
	auth        bool
	serverless  bool

	topologyCalls int
}

func (e *fakeEnv) ServerVersion() *semver.Version {
	if e.version == "" {
		return nil
	}
	return semver.MustParse(e.version)
}

func (e *fakeEnv) Topology(ctx context.Context) (testformat.Topology, error) {
	e.topologyCalls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.topology, e.topologyErr
}

func (e *fakeEnv) ServerParameters() testformat.Document { return e.params }
func (e *fakeEnv) AuthEnabled() bool                     { return e.auth }
func (e *fakeEnv) Serverless() bool                      { return e.serverless }

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func serverlessPtr(s testformat.Serverless) *testformat.Serverless { return &s }

func defaultEnv() *fakeEnv {
	return &fakeEnv{
		version:  "4.4.0",
		topology: testformat.TopologyReplicaSet,
		params:   testformat.Document{"enableTestCommands": true, "requireApiVersion": false},
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		req        testformat.RunOnRequirement
		wantOK     bool
		wantClause Clause
	}{
		{"empty requirement", testformat.RunOnRequirement{}, true, ""},
		{"min satisfied", testformat.RunOnRequirement{MinServerVersion: strPtr("4.0")}, true, ""},
		{"min equal", testformat.RunOnRequirement{MinServerVersion: strPtr("4.4")}, true, ""},
		{"min too new", testformat.RunOnRequirement{MinServerVersion: strPtr("5.0")}, false, ClauseMinServerVersion},
		{"max satisfied", testformat.RunOnRequirement{MaxServerVersion: strPtr("4.4.0")}, true, ""},
		{"max partial covers patch", testformat.RunOnRequirement{MaxServerVersion: strPtr("4.4")}, true, ""},
		{"max too old", testformat.RunOnRequirement{MaxServerVersion: strPtr("4.2")}, false, ClauseMaxServerVersion},
		{"topology member", testformat.RunOnRequirement{Topologies: []testformat.Topology{"single", "replicaset"}}, true, ""},
		{"topology not member", testformat.RunOnRequirement{Topologies: []testformat.Topology{"sharded"}}, false, ClauseTopologies},
		{"params match", testformat.RunOnRequirement{ServerParameters: testformat.Document{"enableTestCommands": true}}, true, ""},
		{"params mismatch", testformat.RunOnRequirement{ServerParameters: testformat.Document{"requireApiVersion": true}}, false, ClauseServerParameters},
		{"params missing", testformat.RunOnRequirement{ServerParameters: testformat.Document{"unknownParameter": 1}}, false, ClauseServerParameters},
		{"serverless forbid", testformat.RunOnRequirement{Serverless: serverlessPtr(testformat.ServerlessForbid)}, true, ""},
		{"serverless require", testformat.RunOnRequirement{Serverless: serverlessPtr(testformat.ServerlessRequire)}, false, ClauseServerless},
		{"auth equal", testformat.RunOnRequirement{Auth: boolPtr(false)}, true, ""},
		{"auth differs", testformat.RunOnRequirement{Auth: boolPtr(true)}, false, ClauseAuth},
		{
			"first failing clause wins",
			testformat.RunOnRequirement{MinServerVersion: strPtr("9.0"), Auth: boolPtr(true)},
			false, ClauseMinServerVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Evaluate(context.Background(), tt.req, defaultEnv())
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, v.Eligible)
			assert.Equal(t, tt.wantClause, v.Clause)
			if !tt.wantOK {
				assert.NotEmpty(t, v.Reason)
			}

			ok, err := CanRunOn(context.Background(), tt.req, defaultEnv())
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestEvaluate_PrereleaseServer(t *testing.T) {
	env := defaultEnv()
	env.version = "4.4.0-rc1"

	ok, err := CanRunOn(context.Background(), testformat.RunOnRequirement{MinServerVersion: strPtr("4.4")}, env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_TopologyQueriedOnlyWhenDeclared(t *testing.T) {
	env := defaultEnv()
	_, err := Evaluate(context.Background(), testformat.RunOnRequirement{Auth: boolPtr(false)}, env)
	require.NoError(t, err)
	assert.Equal(t, 0, env.topologyCalls)

	_, err = Evaluate(context.Background(), testformat.RunOnRequirement{Topologies: []testformat.Topology{"single"}}, env)
	require.NoError(t, err)
	assert.Equal(t, 1, env.topologyCalls)
}

func TestEvaluate_EnvironmentErrorIsNotIneligibility(t *testing.T) {
	env := defaultEnv()
	env.topologyErr = errors.New("connection refused")

	_, err := Evaluate(context.Background(), testformat.RunOnRequirement{Topologies: []testformat.Topology{"single"}}, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = CanRunOn(ctx, testformat.RunOnRequirement{Topologies: []testformat.Topology{"single"}}, defaultEnv())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_UnknownServerVersion(t *testing.T) {
	env := defaultEnv()
	env.version = ""

	_, err := Evaluate(context.Background(), testformat.RunOnRequirement{MinServerVersion: strPtr("4.0")}, env)
	assert.Error(t, err)
}

func TestEvaluate_InvalidBoundPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = Evaluate(context.Background(), testformat.RunOnRequirement{MinServerVersion: strPtr("not-a-version")}, defaultEnv())
	})
}

func TestAnySatisfied(t *testing.T) {
	ctx := context.Background()
	env := defaultEnv()

	v, err := AnySatisfied(ctx, nil, env)
	require.NoError(t, err)
	assert.True(t, v.Eligible)

	v, err = AnySatisfied(ctx, []testformat.RunOnRequirement{
		{MinServerVersion: strPtr("5.0")},
		{Topologies: []testformat.Topology{"replicaset"}},
	}, env)
	require.NoError(t, err)
	assert.True(t, v.Eligible)

	v, err = AnySatisfied(ctx, []testformat.RunOnRequirement{
		{MinServerVersion: strPtr("5.0")},
		{Topologies: []testformat.Topology{"sharded"}},
	}, env)
	require.NoError(t, err)
	assert.False(t, v.Eligible)
	assert.Contains(t, v.Reason, "no runOnRequirements entry satisfied")
	assert.Contains(t, v.Reason, "[0] server version 4.4.0 is lower than minServerVersion 5.0")
	assert.Contains(t, v.Reason, "[1] topology replicaset is not one of [sharded]")

	v, err = AnySatisfied(ctx, []testformat.RunOnRequirement{{Auth: boolPtr(true)}}, env)
	require.NoError(t, err)
	assert.False(t, v.Eligible)
	assert.Equal(t, ClauseAuth, v.Clause)
}

func TestAnySatisfied_PropagatesEnvironmentError(t *testing.T) {
	env := defaultEnv()
	env.topologyErr = errors.New("boom")

	_, err := AnySatisfied(context.Background(), []testformat.RunOnRequirement{
		{Topologies: []testformat.Topology{"single"}},
	}, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runOnRequirements[0]")
}
