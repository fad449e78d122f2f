package testformat

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and parses a test file. Both YAML and JSON files are
// accepted.
func LoadFile(path string) (*TestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}
	return Parse(data)
}

// Load parses a test file from a reader.
func Load(r io.Reader) (*TestFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a test file with strict field validation and checks the
// invariants that decoding alone cannot express.
func Parse(data []byte) (*TestFile, error) {
	var f TestFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("failed to parse test file: empty document")
		}
		return nil, fmt.Errorf("failed to parse test file: %w", err)
	}

	if err := validateTestFile(&f); err != nil {
		return nil, fmt.Errorf("invalid test file: %w", err)
	}
	return &f, nil
}

// validateTestFile checks required fields and entity id uniqueness.
func validateTestFile(f *TestFile) error {
	if f.Description == "" {
		return &SchemaError{Field: "description", Message: "description is required"}
	}
	if f.SchemaVersion.Version == nil {
		return &SchemaError{Field: "schemaVersion", Message: "schemaVersion is required"}
	}
	if f.Tests == nil {
		return &SchemaError{Field: "tests", Message: "tests is required"}
	}

	seen := make(map[string]EntityKind, len(f.CreateEntities))
	for i, d := range f.CreateEntities {
		id := d.EntityID()
		if prev, dup := seen[id]; dup {
			return &SchemaError{
				Field:   fmt.Sprintf("createEntities[%d]", i),
				Message: fmt.Sprintf("duplicate entity id %q (already declared as %s)", id, prev),
			}
		}
		seen[id] = d.Kind()

		if c, ok := d.Entity.(*Client); ok {
			for _, name := range c.ObserveEvents {
				if !validObserveEvent(name) {
					return &SchemaError{
						Field:   fmt.Sprintf("createEntities[%d].client.observeEvents", i),
						Message: fmt.Sprintf("unknown event %q", name),
					}
				}
			}
		}
	}

	for i, data := range f.InitialData {
		if err := validateCollectionData(fmt.Sprintf("initialData[%d]", i), data); err != nil {
			return err
		}
	}

	for i, tc := range f.Tests {
		if err := validateTestCase(i, tc); err != nil {
			return err
		}
	}
	return nil
}

func validateTestCase(index int, tc TestCase) error {
	field := fmt.Sprintf("tests[%d]", index)
	if tc.Description == "" {
		return &SchemaError{Field: field, Message: "description is required"}
	}
	if tc.Operations == nil {
		return &SchemaError{Field: field, Message: "operations is required"}
	}
	for i, op := range tc.Operations {
		if op.Name == "" {
			return &SchemaError{Field: fmt.Sprintf("%s.operations[%d]", field, i), Message: "name is required"}
		}
		if op.Object == "" {
			return &SchemaError{Field: fmt.Sprintf("%s.operations[%d]", field, i), Message: "object is required"}
		}
		if op.ExpectError != nil && op.ExpectResult != nil {
			return &SchemaError{
				Field:   fmt.Sprintf("%s.operations[%d]", field, i),
				Message: "expectError and expectResult are mutually exclusive",
			}
		}
	}
	for i, ee := range tc.ExpectEvents {
		if ee.Client == "" {
			return &SchemaError{Field: fmt.Sprintf("%s.expectEvents[%d]", field, i), Message: "client is required"}
		}
		if ee.Events == nil {
			return &SchemaError{Field: fmt.Sprintf("%s.expectEvents[%d]", field, i), Message: "events is required"}
		}
		for j, ev := range ee.Events {
			if family, _ := EventFamily(ev.Name); family != ee.Type() {
				return &SchemaError{
					Field:   fmt.Sprintf("%s.expectEvents[%d].events[%d]", field, i, j),
					Message: fmt.Sprintf("%s is not a %s event", ev.Name, ee.Type()),
				}
			}
		}
	}
	for i, data := range tc.Outcome {
		if err := validateCollectionData(fmt.Sprintf("%s.outcome[%d]", field, i), data); err != nil {
			return err
		}
	}
	return nil
}

func validateCollectionData(field string, data CollectionData) error {
	if data.CollectionName == "" {
		return &SchemaError{Field: field, Message: "collectionName is required"}
	}
	if data.DatabaseName == "" {
		return &SchemaError{Field: field, Message: "databaseName is required"}
	}
	if data.Documents == nil {
		return &SchemaError{Field: field, Message: "documents is required"}
	}
	return nil
}

// DecodeOperation decodes a nested operation document, such as the
// "operation" argument of runOnThread, with the same strictness as the
// operations of a test case.
func DecodeOperation(doc Document) (Operation, error) {
	var node yaml.Node
	if err := node.Encode(doc); err != nil {
		return Operation{}, fmt.Errorf("encode operation: %w", err)
	}
	var op Operation
	if err := strictDecode(&node, &op); err != nil {
		return Operation{}, fmt.Errorf("decode operation: %w", err)
	}
	if op.Name == "" {
		return Operation{}, &SchemaError{Field: "name", Message: "operation name is required"}
	}
	if op.Object == "" {
		return Operation{}, &SchemaError{Field: "object", Message: "operation object is required"}
	}
	return op, nil
}

// strictDecode decodes a subtree with unknown-field rejection. yaml.v3 does
// not carry KnownFields into custom unmarshalers, so the subtree is
// re-encoded and decoded by a fresh strict decoder.
func strictDecode(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(expandAliases(node))
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// expandAliases returns a copy of node with every alias replaced by the
// anchored content, so the subtree can be encoded on its own.
func expandAliases(node *yaml.Node) *yaml.Node {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.AliasNode {
		return expandAliases(node.Alias)
	}
	cp := *node
	cp.Anchor = ""
	if len(node.Content) > 0 {
		cp.Content = make([]*yaml.Node, len(node.Content))
		for i, child := range node.Content {
			cp.Content[i] = expandAliases(child)
		}
	}
	return &cp
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}
