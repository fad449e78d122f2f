// Package mongoenv discovers a test environment from a live MongoDB
// deployment and adapts driver types to the test format.
package mongoenv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/unifiedrunner/internal/testformat"
)

// Environment is a deployment reached through a connected client. Version,
// server parameters and auth are read once by Connect; Topology queries the
// deployment on every call.
type Environment struct {
	client       *mongo.Client
	logger       *slog.Logger
	version      *semver.Version
	params       testformat.Document
	auth         bool
	serverless   bool
	loadBalanced bool
}

// Connect connects to uri and reads the facts requirement evaluation needs.
// serverless is taken from the caller because a deployment does not report
// it.
func Connect(ctx context.Context, uri string, serverless bool, logger *slog.Logger) (*Environment, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := options.Client().ApplyURI(uri)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	env := &Environment{
		client:       client,
		logger:       logger,
		auth:         opts.Auth != nil,
		serverless:   serverless,
		loadBalanced: opts.LoadBalanced != nil && *opts.LoadBalanced,
	}
	if err := env.load(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	logger.Debug("environment discovered",
		"version", env.version.String(),
		"auth", env.auth,
		"serverless", env.serverless,
		"loadBalanced", env.loadBalanced)
	return env, nil
}

func (e *Environment) load(ctx context.Context) error {
	admin := e.client.Database("admin")

	var buildInfo struct {
		Version string `bson:"version"`
	}
	if err := admin.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&buildInfo); err != nil {
		return fmt.Errorf("buildInfo: %w", err)
	}
	v, err := semver.NewVersion(buildInfo.Version)
	if err != nil {
		return fmt.Errorf("unparseable server version %q: %w", buildInfo.Version, err)
	}
	e.version = v

	raw, err := admin.RunCommand(ctx, bson.D{{Key: "getParameter", Value: "*"}}).Raw()
	if err != nil {
		// Serverless and some managed deployments reject getParameter.
		e.logger.Debug("getParameter failed, using empty server parameters", "error", err)
		e.params = testformat.Document{}
		return nil
	}
	if e.params, err = DecodeDocument(raw); err != nil {
		return fmt.Errorf("getParameter: %w", err)
	}
	return nil
}

// Client returns the connected client.
func (e *Environment) Client() *mongo.Client { return e.client }

// Close disconnects the client.
func (e *Environment) Close(ctx context.Context) error {
	return e.client.Disconnect(ctx)
}

func (e *Environment) ServerVersion() *semver.Version { return e.version }

func (e *Environment) ServerParameters() testformat.Document { return e.params }

func (e *Environment) AuthEnabled() bool { return e.auth }

func (e *Environment) Serverless() bool { return e.serverless }

// Topology classifies the deployment from its hello response. A sharded
// cluster whose shards are all replica sets is sharded-replicaset.
func (e *Environment) Topology(ctx context.Context) (testformat.Topology, error) {
	if e.loadBalanced {
		return testformat.TopologyLoadBalanced, nil
	}

	var hello struct {
		Msg     string `bson:"msg"`
		SetName string `bson:"setName"`
	}
	if err := e.client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return "", fmt.Errorf("hello: %w", err)
	}

	switch {
	case hello.Msg == "isdbgrid":
		return e.shardedTopology(ctx)
	case hello.SetName != "":
		return testformat.TopologyReplicaSet, nil
	default:
		return testformat.TopologySingle, nil
	}
}

func (e *Environment) shardedTopology(ctx context.Context) (testformat.Topology, error) {
	cur, err := e.client.Database("config").Collection("shards").Find(ctx, bson.D{})
	if err != nil {
		return "", fmt.Errorf("list shards: %w", err)
	}
	var shards []struct {
		Host string `bson:"host"`
	}
	if err := cur.All(ctx, &shards); err != nil {
		return "", fmt.Errorf("list shards: %w", err)
	}
	if len(shards) == 0 {
		return testformat.TopologySharded, nil
	}
	for _, s := range shards {
		// Replica set shards are listed as "setName/host1,host2".
		if !strings.Contains(s.Host, "/") {
			return testformat.TopologySharded, nil
		}
	}
	return testformat.TopologyShardedReplicaSet, nil
}

// Documents returns the contents of a collection sorted by _id.
func (e *Environment) Documents(ctx context.Context, database, collection string) ([]testformat.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := e.client.Database(database).Collection(collection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []testformat.Document
	for cur.Next(ctx) {
		doc, err := DecodeDocument(cur.Current)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
