package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Pool tracks the workers of one test case by thread id.
type Pool struct {
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]*Worker
}

// NewPool returns an empty pool whose workers run under ctx.
func NewPool(ctx context.Context, logger *slog.Logger) *Pool {
	return &Pool{ctx: ctx, logger: logger, workers: make(map[string]*Worker)}
}

// Start launches a worker for id. Starting the same id twice is an error.
func (p *Pool) Start(id string) (*Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.workers[id]; exists {
		return nil, fmt.Errorf("thread %s already started", id)
	}
	w := Start(p.ctx, id, p.logger)
	p.workers[id] = w
	return w, nil
}

// Get returns the worker for id.
func (p *Pool) Get(id string) (*Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[id]
	return w, ok
}

// StopAll stops every worker in id order and joins their errors.
func (p *Pool) StopAll(ctx context.Context) error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		w, _ := p.Get(id)
		if err := w.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
