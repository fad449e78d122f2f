package runner

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/unifiedrunner/internal/canonical"
)

// AssertGolden compares result, rendered as indented canonical JSON, with
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/runner -update
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := canonical.MarshalIndent(result, "  ")
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
