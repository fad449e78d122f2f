package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/unifiedrunner/internal/canonical"
)

// marshalObject converts a document to canonical JSON TEXT. Nil is stored
// as "{}".
func marshalObject(field string, v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := canonical.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", field, err)
	}
	return string(data), nil
}

// unmarshalObject parses stored JSON TEXT. Numbers are decoded as int64 when
// integral so values survive a round trip without float conversion.
func unmarshalObject(field, data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", field, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return normalizeNumbers(out).(map[string]any), nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			val[k] = normalizeNumbers(elem)
		}
		return val
	case []any:
		for i, elem := range val {
			val[i] = normalizeNumbers(elem)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}
