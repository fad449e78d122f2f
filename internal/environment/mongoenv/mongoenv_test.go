package mongoenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/roach88/unifiedrunner/internal/expect"
	"github.com/roach88/unifiedrunner/internal/requirement"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

var (
	_ requirement.Environment = (*Environment)(nil)
	_ expect.CollectionSource = (*Environment)(nil)
)

func rawDoc(t *testing.T, d bson.D) bson.Raw {
	t.Helper()
	b, err := bson.Marshal(d)
	require.NoError(t, err)
	return bson.Raw(b)
}

func TestClientOptions_MergedURI(t *testing.T) {
	c := &testformat.Client{
		ID:         "client0",
		URIOptions: testformat.Document{"ssl": true, "w": 2, "readconcernlevel": "local"},
	}
	opts, err := ClientOptions("mongodb://localhost:27017", c, nil)
	require.NoError(t, err)

	assert.NotNil(t, opts.TLSConfig)
	require.NotNil(t, opts.WriteConcern)
	assert.Equal(t, 2, opts.WriteConcern.W)
	require.NotNil(t, opts.ReadConcern)
	assert.Equal(t, "local", opts.ReadConcern.Level)
}

func TestClientOptions_ServerAPIAndMonitors(t *testing.T) {
	strict := true
	c := &testformat.Client{
		ID:            "client0",
		ObserveEvents: []string{"commandStartedEvent"},
		ServerAPI:     &testformat.ServerAPI{Version: "1", Strict: &strict},
	}
	opts, err := ClientOptions("mongodb://localhost:27017", c, NewRecorder(c))
	require.NoError(t, err)

	require.NotNil(t, opts.ServerAPIOptions)
	assert.Equal(t, "1", string(opts.ServerAPIOptions.ServerAPIVersion))
	require.NotNil(t, opts.ServerAPIOptions.Strict)
	assert.True(t, *opts.ServerAPIOptions.Strict)
	assert.NotNil(t, opts.Monitor)
	assert.NotNil(t, opts.PoolMonitor)
}

func TestClientOptions_Invalid(t *testing.T) {
	_, err := ClientOptions("not a uri", &testformat.Client{ID: "client0"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client client0")
}

func TestCollectionOptions(t *testing.T) {
	journal := true
	wtimeout := int64(500)
	staleness := int64(120)
	o := &testformat.CollectionOrDatabaseOptions{
		ReadConcern: &testformat.ReadConcern{Level: "majority"},
		ReadPreference: &testformat.ReadPreference{
			Mode:                "secondaryPreferred",
			TagSets:             []testformat.Document{{"dc": "ny"}},
			MaxStalenessSeconds: &staleness,
		},
		WriteConcern: &testformat.WriteConcern{W: "majority", Journal: &journal, WTimeoutMS: &wtimeout},
	}

	opts, err := CollectionOptions(o)
	require.NoError(t, err)
	assert.Equal(t, "majority", opts.ReadConcern.Level)
	assert.Equal(t, readpref.SecondaryPreferredMode, opts.ReadPreference.Mode())
	maxStaleness, ok := opts.ReadPreference.MaxStaleness()
	assert.True(t, ok)
	assert.Equal(t, 120*time.Second, maxStaleness)
	require.Len(t, opts.ReadPreference.TagSets(), 1)
	assert.Equal(t, "majority", opts.WriteConcern.W)
	assert.Equal(t, &journal, opts.WriteConcern.Journal)
	assert.Equal(t, 500*time.Millisecond, opts.WriteConcern.WTimeout)

	dbOpts, err := DatabaseOptions(&testformat.CollectionOrDatabaseOptions{
		WriteConcern: &testformat.WriteConcern{W: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dbOpts.WriteConcern.W)
	assert.Nil(t, dbOpts.ReadConcern)

	_, err = CollectionOptions(&testformat.CollectionOrDatabaseOptions{
		ReadPreference: &testformat.ReadPreference{Mode: "fastest"},
	})
	assert.Error(t, err)

	_, err = DatabaseOptions(&testformat.CollectionOrDatabaseOptions{
		WriteConcern: &testformat.WriteConcern{W: 1.5},
	})
	assert.Error(t, err)
}

func TestObserveError(t *testing.T) {
	cmdErr := mongo.CommandError{Code: 112, Name: "WriteConflict", Message: "write conflict", Labels: []string{"TransientTransactionError"}}
	oe := ObserveError(fmt.Errorf("update: %w", cmdErr))
	assert.True(t, oe.IsServerError())
	assert.Equal(t, int32(112), oe.ErrorCode)
	assert.Equal(t, "WriteConflict", oe.Name)
	assert.True(t, oe.HasLabel("TransientTransactionError"))

	writeErr := mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}},
	}
	oe = ObserveError(writeErr)
	assert.True(t, oe.IsServerError())
	assert.Equal(t, int32(11000), oe.ErrorCode)
	assert.Equal(t, "DuplicateKey", oe.Name)

	bulkErr := mongo.BulkWriteException{
		WriteConcernError: &mongo.WriteConcernError{Name: "WriteConcernFailed", Code: 64, Message: "waiting for replication timed out"},
		Labels:            []string{"RetryableWriteError"},
	}
	oe = ObserveError(bulkErr)
	assert.Equal(t, int32(64), oe.ErrorCode)
	assert.Equal(t, "WriteConcernFailed", oe.Name)
	assert.True(t, oe.HasLabel("RetryableWriteError"))

	oe = ObserveError(errors.New("server selection timeout"))
	assert.False(t, oe.IsServerError())
	_, hasCode := oe.Code()
	assert.False(t, hasCode)

	assert.Nil(t, ObserveError(nil))
}

func TestObserveError_VerifiesAgainstExpectation(t *testing.T) {
	code := int32(11000)
	isClient := false
	exp := testformat.ExpectError{IsClientError: &isClient, ErrorCode: &code}

	err := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "dup"}}}
	assert.NoError(t, expect.VerifyError(exp, ObserveError(err), "insertOne"))
}

func TestDecodeDocument(t *testing.T) {
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := rawDoc(t, bson.D{
		{Key: "a", Value: int32(1)},
		{Key: "nested", Value: bson.D{{Key: "b", Value: "x"}}},
		{Key: "list", Value: bson.A{int64(1), bson.D{{Key: "c", Value: true}}}},
		{Key: "when", Value: primitive.NewDateTimeFromTime(when)},
	})

	doc, err := DecodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, testformat.Document{
		"a":      int32(1),
		"nested": testformat.Document{"b": "x"},
		"list":   []any{int64(1), testformat.Document{"c": true}},
		"when":   when,
	}, doc)

	empty, err := DecodeDocument(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecorder(t *testing.T) {
	c := &testformat.Client{
		ID:                            "client0",
		ObserveEvents:                 []string{"commandStartedEvent", "commandSucceededEvent", "connectionCheckedOutEvent"},
		IgnoreCommandMonitoringEvents: []string{"killCursors"},
	}
	rec := NewRecorder(c)
	cm := rec.CommandMonitor()
	pm := rec.PoolMonitor()
	ctx := context.Background()

	cm.Started(ctx, &event.CommandStartedEvent{
		Command:      rawDoc(t, bson.D{{Key: "insert", Value: "coll"}}),
		CommandName:  "insert",
		DatabaseName: "db",
		RequestID:    1,
	})
	cm.Started(ctx, &event.CommandStartedEvent{
		Command:     rawDoc(t, bson.D{{Key: "killCursors", Value: "coll"}}),
		CommandName: "killCursors",
		RequestID:   2,
	})
	cm.Started(ctx, &event.CommandStartedEvent{
		Command:     rawDoc(t, bson.D{{Key: "saslStart", Value: 1}}),
		CommandName: "saslStart",
		RequestID:   3,
	})
	pm.Event(&event.PoolEvent{Type: event.GetSucceeded})
	pm.Event(&event.PoolEvent{Type: event.ConnectionReady})
	cm.Succeeded(ctx, &event.CommandSucceededEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{CommandName: "insert", RequestID: 1},
		Reply:                rawDoc(t, bson.D{{Key: "ok", Value: 1.0}}),
	})
	cm.Succeeded(ctx, &event.CommandSucceededEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{CommandName: "killCursors", RequestID: 2},
	})
	cm.Failed(ctx, &event.CommandFailedEvent{
		CommandFinishedEvent: event.CommandFinishedEvent{CommandName: "find", RequestID: 4},
	})

	events := rec.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "commandStartedEvent", events[0].Name)
	assert.Equal(t, "insert", events[0].Fields["commandName"])
	assert.Equal(t, testformat.Document{"insert": "coll"}, events[0].Fields["command"])
	assert.Equal(t, "connectionCheckedOutEvent", events[1].Name)
	assert.Equal(t, "commandSucceededEvent", events[2].Name)
	assert.Equal(t, testformat.Document{"ok": 1.0}, events[2].Fields["reply"])

	exp := testformat.ExpectedEvents{
		Client: "client0",
		Events: []testformat.ExpectedEvent{{
			Name:   "commandStartedEvent",
			Fields: testformat.Document{"command": testformat.Document{"insert": "coll"}, "databaseName": "db"},
		}, {
			Name: "commandSucceededEvent",
		}},
	}
	assert.NoError(t, expect.VerifyEvents(exp, events, "t"))

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestRecorder_ObserveSensitive(t *testing.T) {
	observe := true
	rec := NewRecorder(&testformat.Client{
		ID:                       "client0",
		ObserveEvents:            []string{"commandStartedEvent"},
		ObserveSensitiveCommands: &observe,
	})
	rec.CommandMonitor().Started(context.Background(), &event.CommandStartedEvent{
		Command:     rawDoc(t, bson.D{{Key: "hello", Value: 1}, {Key: "speculativeAuthenticate", Value: bson.D{}}}),
		CommandName: "hello",
	})
	assert.Len(t, rec.Events(), 1)
}

func TestConnect_Live(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env, err := Connect(ctx, uri, false, nil)
	require.NoError(t, err)
	defer func() { _ = env.Close(ctx) }()

	assert.NotNil(t, env.ServerVersion())
	topology, err := env.Topology(ctx)
	require.NoError(t, err)
	assert.Contains(t, testformat.Topologies, topology)
}
