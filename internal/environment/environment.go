// Package environment describes the deployment tests are planned or run
// against.
//
// A Static environment is built from a YAML profile and answers every query
// from memory, which is enough to plan eligibility offline. The mongoenv
// subpackage discovers the same facts from a live deployment.
package environment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/roach88/unifiedrunner/internal/testformat"
)

// DefaultURI is the connection string used when MONGODB_URI is unset.
const DefaultURI = "mongodb://localhost:27017"

// URIFromEnv returns MONGODB_URI, or DefaultURI when it is unset or empty.
func URIFromEnv() string {
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		return uri
	}
	return DefaultURI
}

// ServerlessFromEnv reports whether SERVERLESS marks the deployment as
// serverless.
func ServerlessFromEnv() bool {
	return os.Getenv("SERVERLESS") == "serverless"
}

// Profile is the YAML description of a deployment.
//
//	serverVersion: "7.0.2"
//	topology: replicaset
//	serverParameters:
//	  enableTestCommands: true
//	auth: false
//	serverless: false
type Profile struct {
	ServerVersion    string              `yaml:"serverVersion"`
	Topology         testformat.Topology `yaml:"topology"`
	ServerParameters testformat.Document `yaml:"serverParameters,omitempty"`
	Auth             bool                `yaml:"auth,omitempty"`
	Serverless       bool                `yaml:"serverless,omitempty"`
}

// Static is an environment whose facts are fixed at construction.
type Static struct {
	version    *semver.Version
	topology   testformat.Topology
	params     testformat.Document
	auth       bool
	serverless bool
}

// NewStatic builds a Static environment from a profile.
func NewStatic(p Profile) (*Static, error) {
	if p.ServerVersion == "" {
		return nil, fmt.Errorf("serverVersion is required")
	}
	v, err := semver.NewVersion(p.ServerVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid serverVersion %q: %w", p.ServerVersion, err)
	}
	if p.Topology == "" {
		return nil, fmt.Errorf("topology is required")
	}
	params := p.ServerParameters
	if params == nil {
		params = testformat.Document{}
	}
	return &Static{
		version:    v,
		topology:   p.Topology,
		params:     params,
		auth:       p.Auth,
		serverless: p.Serverless,
	}, nil
}

// LoadProfile reads a profile from a YAML file. Unknown keys are rejected.
func LoadProfile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a YAML profile.
func ParseProfile(data []byte) (*Static, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("failed to parse environment profile: empty document")
		}
		return nil, fmt.Errorf("failed to parse environment profile: %w", err)
	}
	env, err := NewStatic(p)
	if err != nil {
		return nil, fmt.Errorf("invalid environment profile: %w", err)
	}
	return env, nil
}

func (s *Static) ServerVersion() *semver.Version { return s.version }

func (s *Static) Topology(ctx context.Context) (testformat.Topology, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.topology, nil
}

func (s *Static) ServerParameters() testformat.Document { return s.params }

func (s *Static) AuthEnabled() bool { return s.auth }

func (s *Static) Serverless() bool { return s.serverless }

// Profile returns the profile the environment answers from.
func (s *Static) Profile() Profile {
	return Profile{
		ServerVersion:    s.version.String(),
		Topology:         s.topology,
		ServerParameters: s.params,
		Auth:             s.auth,
		Serverless:       s.serverless,
	}
}
