// Package testutil holds deterministic stand-ins for the sources of
// nondeterminism in a run: the logical sequence clock and run ids.
package testutil

import "sync"

// DeterministicClock is a logical clock handing out result sequence numbers.
// The first call to Next returns 1. It is safe for concurrent use, so
// results recorded from worker threads still get distinct numbers.
type DeterministicClock struct {
	mu  sync.Mutex
	seq int64
}

func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new value.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last value handed out, or 0.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock so the next call to Next returns 1 again.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
