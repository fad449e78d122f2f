// Package match compares expected documents from test files with the values
// a deployment actually returned.
//
// Matching is partial: an actual document may carry fields the expected
// document does not mention. Numbers compare by value regardless of their Go
// type. Arrays must have the same length; by default their elements are
// compared pairwise, and with order sensitivity disabled each expected
// element must match a distinct actual element.
//
// Expected documents may use operators in place of values:
//
//	{$$exists: true}            the field is present (false: absent)
//	{$$type: "int"}             the value has the named type, or one of a list
//	{$$unsetOrMatches: <value>} the field is absent or matches <value>
package match

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
)

// MismatchError describes the first difference found between an expected
// and an actual value.
type MismatchError struct {
	Context  string
	Path     string
	Reason   string
	Expected any
	Actual   any
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	var b strings.Builder
	if e.Context != "" {
		b.WriteString(e.Context)
		b.WriteString(": ")
	}
	path := e.Path
	if path == "" {
		path = "(root)"
	}
	fmt.Fprintf(&b, "%s at %s", e.Reason, path)
	if d := e.Diff(); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
	}
	return b.String()
}

// Diff renders the difference between the mismatching values.
func (e *MismatchError) Diff() string {
	return cmp.Diff(e.Expected, e.Actual, cmp.Exporter(func(reflect.Type) bool { return true }))
}

// DocumentsMatch reports whether actual satisfies expected. It returns nil on
// a match and a *MismatchError otherwise. errCtx prefixes the error message.
func DocumentsMatch(expected, actual any, arrayOrderSensitive bool, errCtx string) error {
	m := matcher{orderSensitive: arrayOrderSensitive}
	if err := m.value("", expected, actual, true); err != nil {
		err.Context = errCtx
		return err
	}
	return nil
}

// ResultsMatch compares an operation result with its expectation. A nil
// actual result counts as an unset value, so {$$unsetOrMatches: ...} at the
// root accepts an operation that returned nothing.
func ResultsMatch(expected, actual any, errCtx string) error {
	m := matcher{orderSensitive: true}
	if err := m.value("", expected, actual, actual != nil); err != nil {
		err.Context = errCtx
		return err
	}
	return nil
}

type matcher struct {
	orderSensitive bool
}

func (m matcher) value(path string, expected, actual any, present bool) *MismatchError {
	expected, actual = normalize(expected), normalize(actual)

	if op, arg, ok := operator(expected); ok {
		return m.operator(path, op, arg, actual, present)
	}
	if !present {
		return mismatch(path, "missing field", expected, nil)
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return mismatch(path, fmt.Sprintf("expected document, got %s", TypeName(actual)), expected, actual)
		}
		return m.document(path, exp, act)
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return mismatch(path, fmt.Sprintf("expected array, got %s", TypeName(actual)), expected, actual)
		}
		return m.array(path, exp, act)
	}

	if ef, ok := toFloat(expected); ok {
		if af, ok := toFloat(actual); ok && ef == af {
			return nil
		}
		return mismatch(path, "values differ", expected, actual)
	}
	if et, ok := expected.(time.Time); ok {
		if at, ok := actual.(time.Time); ok && et.Equal(at) {
			return nil
		}
		return mismatch(path, "values differ", expected, actual)
	}
	if !reflect.DeepEqual(expected, actual) {
		return mismatch(path, "values differ", expected, actual)
	}
	return nil
}

func (m matcher) document(path string, expected, actual map[string]any) *MismatchError {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, present := actual[k]
		if err := m.value(path+"."+k, expected[k], v, present); err != nil {
			return err
		}
	}
	return nil
}

func (m matcher) array(path string, expected, actual []any) *MismatchError {
	if len(expected) != len(actual) {
		return mismatch(path, fmt.Sprintf("expected %d elements, got %d", len(expected), len(actual)), expected, actual)
	}

	if m.orderSensitive {
		for i := range expected {
			if err := m.value(path+"["+strconv.Itoa(i)+"]", expected[i], actual[i], true); err != nil {
				return err
			}
		}
		return nil
	}

	used := make([]bool, len(actual))
outer:
	for i, exp := range expected {
		for j, act := range actual {
			if used[j] {
				continue
			}
			if m.value("", exp, act, true) == nil {
				used[j] = true
				continue outer
			}
		}
		return mismatch(path+"["+strconv.Itoa(i)+"]", "no matching element", exp, actual)
	}
	return nil
}

func (m matcher) operator(path, op string, arg, actual any, present bool) *MismatchError {
	switch op {
	case "$$exists":
		want, ok := arg.(bool)
		if !ok {
			return mismatch(path, "$$exists requires a boolean", arg, actual)
		}
		if want != present {
			if want {
				return mismatch(path, "expected field to exist", arg, nil)
			}
			return mismatch(path, "expected field to be absent", nil, actual)
		}
		return nil

	case "$$type":
		if !present {
			return mismatch(path, "missing field", arg, nil)
		}
		names, err := typeNames(arg)
		if err != nil {
			return mismatch(path, err.Error(), arg, actual)
		}
		for _, name := range names {
			if HasType(actual, name) {
				return nil
			}
		}
		return mismatch(path, fmt.Sprintf("expected type %s, got %s", strings.Join(names, " or "), TypeName(actual)), arg, actual)

	case "$$unsetOrMatches":
		if !present {
			return nil
		}
		return m.value(path, arg, actual, true)
	}
	return mismatch(path, fmt.Sprintf("unsupported operator %s", op), arg, actual)
}

// operator recognizes a single-key document whose key is a $$ operator.
func operator(v any) (string, any, bool) {
	doc, ok := v.(map[string]any)
	if !ok || len(doc) != 1 {
		return "", nil, false
	}
	for k, arg := range doc {
		if strings.HasPrefix(k, "$$") {
			return k, arg, true
		}
	}
	return "", nil, false
}

func typeNames(arg any) ([]string, error) {
	switch v := arg.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, n := range v {
			s, ok := n.(string)
			if !ok {
				return nil, fmt.Errorf("$$type list must contain strings")
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("$$type requires a string or a list of strings")
}

func mismatch(path, reason string, expected, actual any) *MismatchError {
	return &MismatchError{Path: path, Reason: reason, Expected: expected, Actual: actual}
}

// normalize converts named map and slice types (for example bson.M and
// bson.A) to the plain forms the matcher switches on.
func normalize(v any) any {
	switch v.(type) {
	case nil, map[string]any, []any:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return v
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// TypeName returns the BSON type alias of a decoded value.
func TypeName(v any) string {
	v = normalize(v)
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case []byte:
		return "binData"
	case time.Time:
		return "date"
	case float32, float64:
		return "double"
	case int32, int8, int16, uint8, uint16:
		return "int"
	case int64, uint32, uint64, uint:
		return "long"
	case int:
		if val >= math.MinInt32 && val <= math.MaxInt32 {
			return "int"
		}
		return "long"
	}
	return fmt.Sprintf("%T", v)
}

// HasType reports whether v has the named BSON type. The alias "number"
// matches any numeric type.
func HasType(v any, name string) bool {
	actual := TypeName(v)
	if name == "number" {
		switch actual {
		case "int", "long", "double", "decimal":
			return true
		}
		return false
	}
	return actual == name
}
