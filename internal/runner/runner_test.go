package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/unifiedrunner/internal/environment"
	"github.com/roach88/unifiedrunner/internal/expect"
	"github.com/roach88/unifiedrunner/internal/testformat"
	"github.com/roach88/unifiedrunner/internal/testutil"
)

// fakeExecutor answers insertOne by document _id: _id 1 is a duplicate key,
// anything else succeeds. Events and collection contents are canned.
type fakeExecutor struct {
	events      map[string][]expect.Event
	collections map[string][]testformat.Document
	setupErr    error
	teardownErr error

	mu        sync.Mutex
	executed  []string
	setups    int
	teardowns int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		events: map[string][]expect.Event{
			"client0": {{
				Name:   "commandStartedEvent",
				Fields: testformat.Document{"commandName": "insert", "databaseName": "crud-tests"},
			}},
		},
		collections: map[string][]testformat.Document{
			"crud-tests.coll0": {{"_id": 1, "x": 11}, {"_id": 2, "x": 22}},
		},
	}
}

func (f *fakeExecutor) Setup(context.Context, []testformat.EntityDecl, []testformat.CollectionData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setups++
	return f.setupErr
}

func (f *fakeExecutor) Teardown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardowns++
	return f.teardownErr
}

func (f *fakeExecutor) Execute(_ context.Context, op testformat.Operation) (any, error) {
	doc, _ := op.Arguments["document"].(testformat.Document)
	id := doc["_id"]

	f.mu.Lock()
	f.executed = append(f.executed, fmt.Sprintf("%s:%v", op.Name, id))
	f.mu.Unlock()

	if op.Name != "insertOne" {
		return nil, fmt.Errorf("unsupported operation %s", op.Name)
	}
	if id == 1 {
		return nil, &expect.ObservedError{
			Server:    true,
			Text:      "E11000 duplicate key error",
			ErrorCode: 11000,
			HasCode:   true,
			Name:      "DuplicateKey",
		}
	}
	return testformat.Document{"insertedId": id}, nil
}

func (f *fakeExecutor) Events(client string) []expect.Event {
	return f.events[client]
}

func (f *fakeExecutor) Documents(_ context.Context, db, coll string) ([]testformat.Document, error) {
	return f.collections[db+"."+coll], nil
}

func (f *fakeExecutor) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.executed)
}

func staticEnv(t *testing.T) *environment.Static {
	t.Helper()
	env, err := environment.NewStatic(environment.Profile{
		ServerVersion: "7.0.2",
		Topology:      testformat.TopologyReplicaSet,
	})
	require.NoError(t, err)
	return env
}

func loadCrud(t *testing.T) *testformat.TestFile {
	t.Helper()
	f, err := testformat.LoadFile("testdata/crud.yml")
	require.NoError(t, err)
	return f
}

func TestRun_Golden(t *testing.T) {
	exec := newFakeExecutor()
	r := New(exec, staticEnv(t))

	result, err := r.Run(context.Background(), loadCrud(t))
	require.NoError(t, err)

	AssertGolden(t, "runner-crud", result)

	pass, fail, skip := result.Counts()
	assert.Equal(t, 3, pass)
	assert.Equal(t, 1, fail)
	assert.Equal(t, 2, skip)
	assert.False(t, result.Passed())

	// Skipped cases never reach the executor.
	assert.Equal(t, 4, exec.setups)
	assert.Equal(t, 4, exec.teardowns)
	assert.Equal(t, []string{"insertOne:2", "insertOne:1", "insertOne:3", "insertOne:4"}, exec.ops())
}

func TestRun_SeqContinuesAcrossFiles(t *testing.T) {
	clock := testutil.NewDeterministicClock()
	r := New(newFakeExecutor(), staticEnv(t), WithClock(clock))
	file := loadCrud(t)

	_, err := r.Run(context.Background(), file)
	require.NoError(t, err)
	second, err := r.Run(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, int64(7), second.Tests[0].Seq)
	assert.Equal(t, int64(12), clock.Current())
}

func singleCase(tc testformat.TestCase) *testformat.TestFile {
	return &testformat.TestFile{
		Description: "file",
		CreateEntities: []testformat.EntityDecl{
			{Entity: &testformat.Thread{ID: "thread0"}},
		},
		Tests: []testformat.TestCase{tc},
	}
}

func insertOp(id int) testformat.Operation {
	return testformat.Operation{
		Name:      "insertOne",
		Object:    "collection0",
		Arguments: testformat.Document{"document": testformat.Document{"_id": id}},
	}
}

func onThread(thread string, op testformat.Operation) testformat.Operation {
	return testformat.Operation{
		Name:   OpRunOnThread,
		Object: testformat.TestRunnerObject,
		Arguments: testformat.Document{
			"thread": thread,
			"operation": testformat.Document{
				"name":      op.Name,
				"object":    op.Object,
				"arguments": op.Arguments,
			},
		},
	}
}

func waitFor(thread string) testformat.Operation {
	return testformat.Operation{
		Name:      OpWaitForThread,
		Object:    testformat.TestRunnerObject,
		Arguments: testformat.Document{"thread": thread},
	}
}

func runOne(t *testing.T, exec *fakeExecutor, tc testformat.TestCase) TestResult {
	t.Helper()
	result, err := New(exec, staticEnv(t)).Run(context.Background(), singleCase(tc))
	require.NoError(t, err)
	require.Len(t, result.Tests, 1)
	return result.Tests[0]
}

func TestRun_Failures(t *testing.T) {
	code := int32(11000)

	tests := []struct {
		name     string
		tc       testformat.TestCase
		reason   string
		contains string
	}{
		{
			name:     "unexpected error",
			tc:       testformat.TestCase{Description: "t", Operations: []testformat.Operation{insertOp(1)}},
			reason:   ReasonOperation,
			contains: "unexpected error",
		},
		{
			name: "result mismatch",
			tc: testformat.TestCase{Description: "t", Operations: []testformat.Operation{
				func() testformat.Operation {
					op := insertOp(2)
					op.ExpectResult = testformat.Document{"insertedId": 3}
					return op
				}(),
			}},
			reason:   ReasonOperation,
			contains: "insertedId",
		},
		{
			name: "thread failure surfaces at wait",
			tc: testformat.TestCase{Description: "t", Operations: []testformat.Operation{
				onThread("thread0", insertOp(1)),
				waitFor("thread0"),
			}},
			reason:   ReasonThread,
			contains: "unexpected error",
		},
		{
			name: "thread failure surfaces without wait",
			tc: testformat.TestCase{Description: "t", Operations: []testformat.Operation{
				onThread("thread0", insertOp(1)),
			}},
			reason:   ReasonThread,
			contains: "duplicate key",
		},
		{
			name: "unknown thread",
			tc: testformat.TestCase{Description: "t", Operations: []testformat.Operation{
				waitFor("thread9"),
			}},
			reason:   ReasonThread,
			contains: `unknown thread "thread9"`,
		},
		{
			name: "events",
			tc: testformat.TestCase{
				Description: "t",
				Operations:  []testformat.Operation{},
				ExpectEvents: []testformat.ExpectedEvents{{
					Client: "client0",
					Events: []testformat.ExpectedEvent{{Name: "commandStartedEvent", Fields: testformat.Document{"commandName": "find"}}},
				}},
			},
			reason:   ReasonExpectEvents,
			contains: "commandName",
		},
		{
			name: "outcome",
			tc: testformat.TestCase{
				Description: "t",
				Operations:  []testformat.Operation{},
				Outcome: []testformat.CollectionData{{
					DatabaseName: "crud-tests", CollectionName: "coll0",
					Documents: []testformat.Document{{"_id": 1}},
				}},
			},
			reason:   ReasonOutcome,
			contains: "expected 1 documents",
		},
		{
			name: "expected error code differs",
			tc: testformat.TestCase{Description: "t", Operations: []testformat.Operation{
				func() testformat.Operation {
					op := insertOp(1)
					other := code + 1
					op.ExpectError = &testformat.ExpectError{ErrorCode: &other}
					return op
				}(),
			}},
			reason:   ReasonOperation,
			contains: "did not match expected error code 11001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor()
			tr := runOne(t, exec, tt.tc)
			assert.Equal(t, StatusFail, tr.Status)
			assert.Equal(t, tt.reason, tr.Reason)
			assert.Contains(t, tr.Error, tt.contains)
			assert.Equal(t, 1, exec.teardowns)
		})
	}
}

func TestRun_FirstFailureEndsCase(t *testing.T) {
	exec := newFakeExecutor()
	tr := runOne(t, exec, testformat.TestCase{Description: "t", Operations: []testformat.Operation{
		insertOp(1),
		insertOp(5),
	}})
	assert.Equal(t, StatusFail, tr.Status)
	assert.Equal(t, 1, tr.Operations)
	assert.Equal(t, []string{"insertOne:1"}, exec.ops())
}

func TestRun_IgnoreResultAndError(t *testing.T) {
	ignore := true
	op := insertOp(1)
	op.IgnoreResultAndError = &ignore

	tr := runOne(t, newFakeExecutor(), testformat.TestCase{Description: "t", Operations: []testformat.Operation{op}})
	assert.Equal(t, StatusPass, tr.Status)
}

func TestRun_ThreadOrdering(t *testing.T) {
	exec := newFakeExecutor()
	tr := runOne(t, exec, testformat.TestCase{Description: "t", Operations: []testformat.Operation{
		onThread("thread0", insertOp(10)),
		onThread("thread0", insertOp(11)),
		onThread("thread0", insertOp(12)),
		waitFor("thread0"),
		insertOp(13),
	}})
	require.Equal(t, StatusPass, tr.Status, tr.Error)
	assert.Equal(t, []string{"insertOne:10", "insertOne:11", "insertOne:12", "insertOne:13"}, exec.ops())
}

func TestRun_SetupAndTeardownErrors(t *testing.T) {
	exec := newFakeExecutor()
	exec.setupErr = errors.New("cannot create client")
	tr := runOne(t, exec, testformat.TestCase{Description: "t", Operations: []testformat.Operation{insertOp(2)}})
	assert.Equal(t, ReasonSetup, tr.Reason)
	assert.Empty(t, exec.ops())
	assert.Equal(t, 1, exec.teardowns)

	exec = newFakeExecutor()
	exec.teardownErr = errors.New("drop failed")
	tr = runOne(t, exec, testformat.TestCase{Description: "t", Operations: []testformat.Operation{insertOp(2)}})
	assert.Equal(t, ReasonTeardown, tr.Reason)
	assert.Equal(t, "drop failed", tr.Error)

	// An earlier failure wins over the teardown error.
	tr = runOne(t, exec, testformat.TestCase{Description: "t", Operations: []testformat.Operation{insertOp(1)}})
	assert.Equal(t, ReasonOperation, tr.Reason)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(newFakeExecutor(), staticEnv(t)).Run(ctx, singleCase(testformat.TestCase{
		Description: "t",
		Operations:  []testformat.Operation{},
	}))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Len(t, result.Tests, 1)
}

func TestCheckOperation(t *testing.T) {
	op := insertOp(1)
	assert.NoError(t, CheckOperation(op, nil, nil, "l"))
	assert.ErrorContains(t, CheckOperation(op, nil, errors.New("boom"), "l"), "l: unexpected error: boom")

	op.ExpectResult = testformat.Document{"$$unsetOrMatches": testformat.Document{"insertedId": 1}}
	assert.NoError(t, CheckOperation(op, nil, nil, "l"))
	assert.NoError(t, CheckOperation(op, testformat.Document{"insertedId": 1}, nil, "l"))
}

func TestRecords(t *testing.T) {
	result := &Result{File: "f", Tests: []TestResult{
		{Seq: 1, Test: "a", Status: StatusPass, Operations: 2},
		{Seq: 2, Test: "b", Status: StatusFail, Reason: ReasonOutcome, Error: "bad", Operations: 1},
	}}
	records := result.Records("testdata/f.yml")
	require.Len(t, records, 2)
	assert.Equal(t, "testdata/f.yml", records[0].File)
	assert.Equal(t, "pass", records[0].Status)
	assert.Equal(t, map[string]any{"file": "f", "operations": 2}, records[0].Details)
	assert.Equal(t, "bad", records[1].Details["error"])
	assert.Equal(t, ReasonOutcome, records[1].Reason)
}
