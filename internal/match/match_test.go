package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc = map[string]any

func TestDocumentsMatch(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		ordered  bool
		wantErr  string
	}{
		{"equal scalars", 1, 1, true, ""},
		{"int vs float", 1, 1.0, true, ""},
		{"int32 vs int64", int32(5), int64(5), true, ""},
		{"different numbers", 1, 2, true, "values differ at (root)"},
		{"string mismatch", "a", "b", true, "values differ"},
		{"extra actual fields", doc{"a": 1}, doc{"a": 1, "b": 2}, true, ""},
		{"nested extra fields", doc{"a": doc{"x": 1}}, doc{"a": doc{"x": 1, "y": 2}}, true, ""},
		{"missing field", doc{"a": 1, "b": 2}, doc{"a": 1}, true, "missing field at .b"},
		{"type mismatch", doc{"a": doc{}}, doc{"a": 1}, true, "expected document, got int at .a"},
		{"array ordered", []any{1, 2}, []any{1, 2}, true, ""},
		{"array order matters", []any{1, 2}, []any{2, 1}, true, "values differ at [0]"},
		{"array unordered", []any{1, 2}, []any{2, 1}, false, ""},
		{"array length", []any{1}, []any{1, 1}, false, "expected 1 elements, got 2"},
		{"unordered distinct", []any{1, 1}, []any{1, 2}, false, "no matching element at [1]"},
		{"null", nil, nil, true, ""},
		{"exists true", doc{"a": doc{"$$exists": true}}, doc{"a": 0}, true, ""},
		{"exists true missing", doc{"a": doc{"$$exists": true}}, doc{}, true, "expected field to exist at .a"},
		{"exists false", doc{"a": doc{"$$exists": false}}, doc{}, true, ""},
		{"exists false present", doc{"a": doc{"$$exists": false}}, doc{"a": 1}, true, "expected field to be absent"},
		{"type", doc{"a": doc{"$$type": "string"}}, doc{"a": "s"}, true, ""},
		{"type list", doc{"a": doc{"$$type": []any{"int", "long"}}}, doc{"a": int64(1)}, true, ""},
		{"type mismatch operator", doc{"a": doc{"$$type": "bool"}}, doc{"a": 1}, true, "expected type bool, got int"},
		{"unset or matches absent", doc{"a": doc{"$$unsetOrMatches": 1}}, doc{}, true, ""},
		{"unset or matches present", doc{"a": doc{"$$unsetOrMatches": 1}}, doc{"a": 2}, true, "values differ at .a"},
		{"unknown operator", doc{"a": doc{"$$bogus": 1}}, doc{"a": 1}, true, "unsupported operator $$bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DocumentsMatch(tt.expected, tt.actual, tt.ordered, "")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDocumentsMatch_ServerParameters(t *testing.T) {
	params := doc{
		"enableTestCommands": 1,
		"requireApiVersion":  false,
		"featureCompatibilityVersion": doc{
			"version": "7.0",
		},
		"setParameters": []any{"b", "a"},
	}

	assert.NoError(t, DocumentsMatch(doc{"enableTestCommands": 1.0}, params, false, ""))
	assert.NoError(t, DocumentsMatch(doc{"setParameters": []any{"a", "b"}}, params, false, ""))
	assert.Error(t, DocumentsMatch(doc{"requireApiVersion": true}, params, false, ""))
}

func TestDocumentsMatch_NamedTypes(t *testing.T) {
	type m map[string]any
	type a []any

	assert.NoError(t, DocumentsMatch(doc{"x": []any{1}}, m{"x": a{1}}, true, ""))
}

func TestMismatchError(t *testing.T) {
	err := DocumentsMatch(doc{"a": doc{"b": 1}}, doc{"a": doc{"b": 2}}, true, "server parameters")
	require.Error(t, err)

	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, ".a.b", mm.Path)
	assert.Equal(t, "server parameters", mm.Context)
	assert.Equal(t, 1, mm.Expected)
	assert.Equal(t, 2, mm.Actual)
	assert.Contains(t, err.Error(), "server parameters: values differ at .a.b")
	assert.NotEmpty(t, mm.Diff())
}

func TestResultsMatch(t *testing.T) {
	assert.NoError(t, ResultsMatch(doc{"$$unsetOrMatches": doc{"insertedId": 1}}, nil, ""))
	assert.NoError(t, ResultsMatch(doc{"$$unsetOrMatches": doc{"insertedId": 1}}, doc{"insertedId": 1}, ""))
	assert.Error(t, ResultsMatch(doc{"insertedId": 1}, nil, ""))
	assert.Error(t, ResultsMatch([]any{1, 2}, []any{2, 1}, ""))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "int", TypeName(1))
	assert.Equal(t, "long", TypeName(int64(1)))
	assert.Equal(t, "long", TypeName(1<<40))
	assert.Equal(t, "double", TypeName(1.5))
	assert.Equal(t, "object", TypeName(doc{}))
	assert.Equal(t, "array", TypeName([]string{"a"}))
	assert.Equal(t, "null", TypeName(nil))
	assert.True(t, HasType(int64(3), "number"))
	assert.False(t, HasType("3", "number"))
}
