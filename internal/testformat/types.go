package testformat

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is a string-keyed structured value as decoded from a test file.
// Nested documents are map[string]any and arrays are []any.
type Document = map[string]any

// TestFile is one loaded unified test format document.
type TestFile struct {
	Description       string             `yaml:"description"`
	SchemaVersion     SchemaVersion      `yaml:"schemaVersion"`
	RunOnRequirements []RunOnRequirement `yaml:"runOnRequirements,omitempty"`
	CreateEntities    []EntityDecl       `yaml:"createEntities,omitempty"`
	InitialData       []CollectionData   `yaml:"initialData,omitempty"`
	Tests             []TestCase         `yaml:"tests"`

	// YAMLAnchors holds anchor definitions reused elsewhere in the document.
	// It is accepted so strict decoding does not reject it, and never read.
	YAMLAnchors any `yaml:"_yamlAnchors,omitempty"`
}

// RunOnRequirement is one eligibility clause. Nil fields impose no
// constraint.
type RunOnRequirement struct {
	MinServerVersion *string     `yaml:"minServerVersion,omitempty"`
	MaxServerVersion *string     `yaml:"maxServerVersion,omitempty"`
	Topologies       []Topology  `yaml:"topologies,omitempty"`
	ServerParameters Document    `yaml:"serverParameters,omitempty"`
	Serverless       *Serverless `yaml:"serverless,omitempty"`
	Auth             *bool       `yaml:"auth,omitempty"`
}

// IsEmpty reports whether the requirement declares no clause at all.
func (r RunOnRequirement) IsEmpty() bool {
	return r.MinServerVersion == nil &&
		r.MaxServerVersion == nil &&
		r.Topologies == nil &&
		r.ServerParameters == nil &&
		r.Serverless == nil &&
		r.Auth == nil
}

// Topology classifies the deployment shape of a test environment.
type Topology string

const (
	TopologySingle            Topology = "single"
	TopologyReplicaSet        Topology = "replicaset"
	TopologySharded           Topology = "sharded"
	TopologyShardedReplicaSet Topology = "sharded-replicaset"
	TopologyLoadBalanced      Topology = "load-balanced"
)

// Topologies lists every valid topology in declaration order.
var Topologies = []Topology{
	TopologySingle,
	TopologyReplicaSet,
	TopologySharded,
	TopologyShardedReplicaSet,
	TopologyLoadBalanced,
}

// ParseTopology converts a string into a Topology.
func ParseTopology(s string) (Topology, error) {
	for _, t := range Topologies {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &SchemaError{Field: "topology", Message: fmt.Sprintf("unknown topology %q", s)}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Topology) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return &SchemaError{Field: "topology", Message: err.Error()}
	}
	parsed, err := ParseTopology(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Serverless restricts a test to, or excludes it from, serverless
// deployments.
type Serverless string

const (
	ServerlessRequire Serverless = "require"
	ServerlessForbid  Serverless = "forbid"
	ServerlessAllow   Serverless = "allow"
)

// CanRun reports whether a deployment with the given serverless
// classification satisfies the gate.
func (s Serverless) CanRun(isServerless bool) bool {
	switch s {
	case ServerlessRequire:
		return isServerless
	case ServerlessForbid:
		return !isServerless
	default:
		return true
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Serverless) UnmarshalYAML(node *yaml.Node) error {
	var v string
	if err := node.Decode(&v); err != nil {
		return &SchemaError{Field: "serverless", Message: err.Error()}
	}
	switch Serverless(v) {
	case ServerlessRequire, ServerlessForbid, ServerlessAllow:
		*s = Serverless(v)
		return nil
	}
	return &SchemaError{Field: "serverless", Message: fmt.Sprintf("unknown value %q", v)}
}

// CollectionData names a collection and its documents. It is used both for
// seed data and for expected final contents.
type CollectionData struct {
	CollectionName string     `yaml:"collectionName"`
	DatabaseName   string     `yaml:"databaseName"`
	Documents      []Document `yaml:"documents"`
}

// Namespace returns "database.collection".
func (c CollectionData) Namespace() string {
	return c.DatabaseName + "." + c.CollectionName
}

// TestCase is one scenario: operations plus the expectations checked after
// they ran.
type TestCase struct {
	Description       string             `yaml:"description"`
	RunOnRequirements []RunOnRequirement `yaml:"runOnRequirements,omitempty"`
	SkipReason        *string            `yaml:"skipReason,omitempty"`
	Operations        []Operation        `yaml:"operations"`
	ExpectEvents      []ExpectedEvents   `yaml:"expectEvents,omitempty"`
	Outcome           []CollectionData   `yaml:"outcome,omitempty"`
}

// Operation is a single step of a test case.
type Operation struct {
	Name                 string       `yaml:"name"`
	Object               string       `yaml:"object"`
	Arguments            Document     `yaml:"arguments,omitempty"`
	ExpectError          *ExpectError `yaml:"expectError,omitempty"`
	ExpectResult         any          `yaml:"expectResult,omitempty"`
	SaveResultAsEntity   *string      `yaml:"saveResultAsEntity,omitempty"`
	IgnoreResultAndError *bool        `yaml:"ignoreResultAndError,omitempty"`
}

// TestRunnerObject is the object name of operations handled by the runner
// itself rather than by an entity.
const TestRunnerObject = "testRunner"

// ExpectError is a declared error expectation. Every clause is optional.
type ExpectError struct {
	IsError            *bool    `yaml:"isError,omitempty"`
	IsClientError      *bool    `yaml:"isClientError,omitempty"`
	ErrorContains      *string  `yaml:"errorContains,omitempty"`
	ErrorCode          *int32   `yaml:"errorCode,omitempty"`
	ErrorCodeName      *string  `yaml:"errorCodeName,omitempty"`
	ErrorLabelsContain []string `yaml:"errorLabelsContain,omitempty"`
	ErrorLabelsOmit    []string `yaml:"errorLabelsOmit,omitempty"`

	// ExpectResult is a partial result carried by some errors (e.g. bulk
	// write results). It is decoded but not compared.
	ExpectResult any `yaml:"expectResult,omitempty"`
}
