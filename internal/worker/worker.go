// Package worker runs test operations on named threads.
//
// Each Worker owns an ordered task queue drained by a single goroutine.
// Operations submitted to one worker run in submission order; operations on
// different workers run concurrently. Stopping is cooperative: the stop
// request is queued behind earlier operations, which finish first.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Submit once a stop has been requested.
var ErrStopped = errors.New("worker stopped")

// Operation is a unit of work run on a worker goroutine.
type Operation func(ctx context.Context) error

// Worker executes queued operations on its own goroutine.
type Worker struct {
	id     string
	queue  *taskQueue
	logger *slog.Logger
	exited chan struct{}

	mu   sync.Mutex
	errs []error
}

// Start launches a worker. The worker exits when a stop request is
// processed or ctx is cancelled.
func Start(ctx context.Context, id string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &Worker{
		id:     id,
		queue:  newTaskQueue(),
		logger: logger.With("thread", id),
		exited: make(chan struct{}),
	}
	go w.run(ctx)
	w.logger.Debug("thread started")
	return w
}

// ID returns the thread id the worker was started with.
func (w *Worker) ID() string { return w.id }

// Submit queues op. label identifies the operation in collected errors.
func (w *Worker) Submit(label string, op Operation) error {
	if !w.queue.Enqueue(task{kind: taskExecute, label: label, op: op}) {
		return fmt.Errorf("thread %s: %w", w.id, ErrStopped)
	}
	return nil
}

// Stop queues a stop request behind all submitted operations and waits until
// the worker has drained them and exited. It returns the errors of the
// operations that failed, joined. Calling Stop again waits for the same
// exit.
func (w *Worker) Stop(ctx context.Context) error {
	done := make(chan struct{})
	if w.queue.Enqueue(task{kind: taskStop, done: done}) {
		w.queue.Close()
	} else {
		done = w.exited
	}

	select {
	case <-done:
	case <-w.exited:
	case <-ctx.Done():
		return fmt.Errorf("thread %s: waiting for stop: %w", w.id, ctx.Err())
	}
	return w.Err()
}

// Err returns the joined errors of failed operations so far.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Join(w.errs...)
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.exited }

func (w *Worker) record(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errs = append(w.errs, err)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.exited)

	for {
		t, ok := w.queue.TryDequeue()
		if !ok {
			select {
			case <-ctx.Done():
				w.record(fmt.Errorf("thread %s: %w", w.id, ctx.Err()))
				w.queue.Close()
				return
			case <-w.queue.Wait():
				continue
			}
		}

		switch t.kind {
		case taskExecute:
			if err := t.op(ctx); err != nil {
				w.logger.Debug("operation failed", "operation", t.label, "error", err)
				w.record(fmt.Errorf("%s: %w", t.label, err))
			}
		case taskStop:
			w.logger.Debug("thread stopped")
			close(t.done)
			return
		}
	}
}
