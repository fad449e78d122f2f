package expect

import (
	"context"
	"fmt"

	"github.com/roach88/unifiedrunner/internal/match"
	"github.com/roach88/unifiedrunner/internal/testformat"
)

// CollectionSource reads the current contents of a collection, sorted by
// _id ascending.
type CollectionSource interface {
	Documents(ctx context.Context, database, collection string) ([]testformat.Document, error)
}

// VerifyOutcome compares the final contents of each listed collection with
// the expected documents. Reading a collection may fail independently of
// verification; such errors are returned wrapped rather than as a
// *VerificationError.
func VerifyOutcome(ctx context.Context, expected []testformat.CollectionData, source CollectionSource, label string) error {
	for _, want := range expected {
		got, err := source.Documents(ctx, want.DatabaseName, want.CollectionName)
		if err != nil {
			return fmt.Errorf("%s: failed to read %s: %w", label, want.Namespace(), err)
		}
		if len(got) != len(want.Documents) {
			return failure("outcome", "%s: expected %d documents in %s, got %d",
				label, len(want.Documents), want.Namespace(), len(got))
		}
		for i := range want.Documents {
			errCtx := fmt.Sprintf("%s: %s document %d", label, want.Namespace(), i)
			if err := match.DocumentsMatch(want.Documents[i], got[i], true, errCtx); err != nil {
				return &VerificationError{Clause: "outcome", Message: err.Error()}
			}
		}
	}
	return nil
}
