// Package connstr manipulates MongoDB connection strings.
package connstr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/unifiedrunner/internal/testformat"
)

// MergeURIOptions appends opts to the query string of base. Keys present in
// opts replace the same keys in base; other base options keep their relative
// order. A nil opts returns base unchanged.
//
//	MergeURIOptions("mongodb://h/?ssl=false&x=1", {"ssl": true, "w": 2})
//	  -> "mongodb://h/?x=1&ssl=true&w=2"
func MergeURIOptions(base string, opts testformat.Document) string {
	if opts == nil {
		return base
	}

	prefix, query, hasQuery := strings.Cut(base, "?")

	var b strings.Builder
	b.WriteString(prefix)
	// The slash separating hosts from the auth database is optional in a
	// connection string but required before the query.
	if strings.Count(prefix, "/") < 3 {
		b.WriteByte('/')
	}
	b.WriteByte('?')

	pairs := make([]string, 0, len(opts))
	if hasQuery {
		for _, option := range strings.Split(query, "&") {
			if option == "" {
				continue
			}
			key, _, _ := strings.Cut(option, "=")
			if _, overridden := opts[key]; overridden {
				continue
			}
			pairs = append(pairs, option)
		}
	}

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, k+"="+FormatOptionValue(opts[k]))
	}

	if len(pairs) == 0 {
		// Drop the dangling '?'.
		return strings.TrimSuffix(b.String(), "?")
	}
	b.WriteString(strings.Join(pairs, "&"))
	return b.String()
}

// FormatOptionValue renders an option value the way it appears in a query
// string. Strings are written as-is; every other value uses its JSON text
// with surrounding quotes removed.
func FormatOptionValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	case bool, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(val)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return strings.Trim(fmt.Sprint(v), `"`)
	}
	return strings.Trim(strings.TrimSuffix(buf.String(), "\n"), `"`)
}
