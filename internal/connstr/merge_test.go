package connstr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/unifiedrunner/internal/testformat"
)

func TestMergeURIOptions(t *testing.T) {
	tests := []struct {
		name string
		base string
		opts testformat.Document
		want string
	}{
		{
			name: "nil overrides",
			base: "mongodb://localhost:27017",
			opts: nil,
			want: "mongodb://localhost:27017",
		},
		{
			name: "adds auth database slash",
			base: "mongodb://localhost:27017",
			opts: testformat.Document{"w": 2},
			want: "mongodb://localhost:27017/?w=2",
		},
		{
			name: "keeps existing slash",
			base: "mongodb://localhost:27017/admin",
			opts: testformat.Document{"w": 2},
			want: "mongodb://localhost:27017/admin?w=2",
		},
		{
			name: "override wins",
			base: "mongodb://host/?ssl=false&x=1",
			opts: testformat.Document{"ssl": true, "w": 2},
			want: "mongodb://host/?x=1&ssl=true&w=2",
		},
		{
			name: "base order preserved",
			base: "mongodb://host/?c=3&a=1&b=2",
			opts: testformat.Document{"a": "x"},
			want: "mongodb://host/?c=3&b=2&a=x",
		},
		{
			name: "override keys sorted",
			base: "mongodb://host/",
			opts: testformat.Document{"zlib": 1, "appname": "app", "retryWrites": false},
			want: "mongodb://host/?appname=app&retryWrites=false&zlib=1",
		},
		{
			name: "empty overrides normalize",
			base: "mongodb://host",
			opts: testformat.Document{},
			want: "mongodb://host/",
		},
		{
			name: "empty overrides keep base query",
			base: "mongodb://host/?x=1",
			opts: testformat.Document{},
			want: "mongodb://host/?x=1",
		},
		{
			name: "empty segments dropped",
			base: "mongodb://host/?x=1&&y=2&",
			opts: testformat.Document{"z": 3},
			want: "mongodb://host/?x=1&y=2&z=3",
		},
		{
			name: "float value",
			base: "mongodb://host/",
			opts: testformat.Document{"heartbeatFrequencyMS": 500.0},
			want: "mongodb://host/?heartbeatFrequencyMS=500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeURIOptions(tt.base, tt.opts))
		})
	}
}

func TestMergeURIOptions_NoDuplicateKeys(t *testing.T) {
	got := MergeURIOptions("mongodb://a,b/?w=1&w=majority&r=1", testformat.Document{"w": 2})

	_, query, _ := strings.Cut(got, "?")
	counts := map[string]int{}
	for _, pair := range strings.Split(query, "&") {
		key, _, _ := strings.Cut(pair, "=")
		counts[key]++
	}
	assert.Equal(t, map[string]int{"w": 1, "r": 1}, counts)
	assert.True(t, strings.HasSuffix(got, "w=2"))
}

func TestFormatOptionValue(t *testing.T) {
	assert.Equal(t, "majority", FormatOptionValue("majority"))
	assert.Equal(t, "true", FormatOptionValue(true))
	assert.Equal(t, "42", FormatOptionValue(42))
	assert.Equal(t, "1.5", FormatOptionValue(1.5))
	assert.Equal(t, "null", FormatOptionValue(nil))
	assert.Equal(t, `{"a":1}`, FormatOptionValue(map[string]any{"a": 1}))
	assert.Equal(t, "[1,2]", FormatOptionValue([]any{1, 2}))
}
