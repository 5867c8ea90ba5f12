package scheduler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the CPU-heavy work of a resolution. Waiting on other
// dependencies never holds a worker, so nested resolutions cannot starve it.
type Pool struct {
	size int
	sem  *semaphore.Weighted
}

// NewPool creates a pool of size workers. A size below one uses the number
// of CPUs.
func NewPool(size int) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	return &Pool{size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Do runs fn once a worker is free.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Group returns an errgroup running at most Size goroutines at once.
func (p *Pool) Group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	return g, ctx
}
