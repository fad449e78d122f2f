package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator produces predictable run ids of the form
// "<prefix>-0001", "<prefix>-0002", ... so stored runs and golden output
// do not depend on wall time.
type SequentialIDGenerator struct {
	prefix string

	mu sync.Mutex
	n  int
}

// NewSequentialIDGenerator returns a generator using prefix, or "run" when
// prefix is empty.
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
