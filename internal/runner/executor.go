package runner

import (
	"context"

	"github.com/roach88/unifiedrunner/internal/expect"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

// Executor performs the operations of a test case against a deployment.
//
// Setup is called once per case before any operation and Teardown once
// after, even when the case failed. Execute may be called concurrently
// from worker threads and must be safe for that. Events returns what the
// named client entity observed since Setup, in publication order. The
// embedded CollectionSource reads final collection contents for outcome
// checks.
//
// Saving results as entities (saveResultAsEntity) is the executor's
// concern; the runner only compares results and errors.
type Executor interface {
	expect.CollectionSource

	Setup(ctx context.Context, entities []testformat.EntityDecl, initialData []testformat.CollectionData) error
	Execute(ctx context.Context, op testformat.Operation) (any, error)
	Events(client string) []expect.Event
	Teardown(ctx context.Context) error
}
