package testformat

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// ValidateSchema checks a raw test file against the closed CUE schema.
// It complements Parse: Parse builds the typed model, ValidateSchema reports
// every value-level violation with its document path.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &SchemaError{Field: "document", Message: err.Error()}
	}
	if doc == nil {
		return &SchemaError{Field: "document", Message: "empty document"}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#TestFile"))

	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return &SchemaError{Field: "document", Message: err.Error()}
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Field: "document", Message: cueerrors.Details(err, nil)}
	}
	return nil
}
