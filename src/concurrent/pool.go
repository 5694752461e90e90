package concurrent

import (
	"context"
	"sync"
)

// WorkerPool bounds the number of in-flight operations.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a pool admitting at most maxWorkers at once.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	return &WorkerPool{sem: make(chan struct{}, maxWorkers)}
}

// Do runs fn once a worker slot is free, or returns early when the context is
// cancelled.
func (wp *WorkerPool) Do(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case wp.sem <- struct{}{}:
		defer func() { <-wp.sem }()
		return fn()
	}
}

// ForkJoin runs every task concurrently and waits for all of them. Each task
// gets its own error slot; callers decide how to treat partial failures.
func ForkJoin(ctx context.Context, tasks ...func(context.Context) error) []error {
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, fn func(context.Context) error) {
			defer wg.Done()
			errs[idx] = fn(ctx)
		}(i, task)
	}
	wg.Wait()
	return errs
}
