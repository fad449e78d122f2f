package mongoenv

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/unifiedrunner/internal/testformat"
)

// DecodeDocument converts a raw BSON document into the plain form used by
// test expectations: nested documents become testformat.Document, arrays
// become []any and BSON dates become time.Time.
func DecodeDocument(raw bson.Raw) (testformat.Document, error) {
	if len(raw) == 0 {
		return testformat.Document{}, nil
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return plain(d).(testformat.Document), nil
}

func plain(v any) any {
	switch val := v.(type) {
	case bson.D:
		out := make(testformat.Document, len(val))
		for _, e := range val {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.M:
		out := make(testformat.Document, len(val))
		for k, e := range val {
			out[k] = plain(e)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plain(e)
		}
		return out
	case primitive.DateTime:
		return val.Time().UTC()
	}
	return v
}
