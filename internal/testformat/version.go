package testformat

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SchemaError reports a malformed or non-conforming test file.
type SchemaError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NormalizeSchemaVersion pads a dotted version string to three components
// and parses it as a strict semantic version.
//
//	"1"     -> 1.0.0
//	"1.5"   -> 1.5.0
//	"1.5.2" -> 1.5.2
func NormalizeSchemaVersion(s string) (*semver.Version, error) {
	switch strings.Count(s, ".") + 1 {
	case 1:
		s += ".0.0"
	case 2:
		s += ".0"
	case 3:
	default:
		return nil, &SchemaError{
			Field:   "schemaVersion",
			Message: fmt.Sprintf("invalid version %q: expected 1 to 3 components", s),
		}
	}

	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return nil, &SchemaError{Field: "schemaVersion", Message: err.Error()}
	}
	return v, nil
}

// SchemaVersion is a test file schema version normalized to major.minor.patch.
type SchemaVersion struct {
	*semver.Version
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *SchemaVersion) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return &SchemaError{Field: "schemaVersion", Message: err.Error()}
	}
	parsed, err := NormalizeSchemaVersion(s)
	if err != nil {
		return err
	}
	v.Version = parsed
	return nil
}
