// Package flight deduplicates concurrent calls by key.
//
// A call runs under a context detached from the caller that started it, so
// one caller going away does not fail the others. The call is cancelled only
// once every caller waiting for it has gone.
package flight

import (
	"context"
	"sync"
)

// Group runs at most one call per key at a time.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

type call[T any] struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int
	val     T
	err     error
}

// Do runs fn for key unless a call for key is already running, in which case
// it waits for that call. It returns early with ctx.Err() when ctx ends. The
// last caller to leave cancels the call and waits for fn to return.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	c, ok := g.calls[key]
	if !ok {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[T]{done: make(chan struct{}), cancel: cancel}
		g.calls[key] = c
		go g.run(runCtx, key, c, fn)
	}
	c.waiters++
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
	}

	g.mu.Lock()
	c.waiters--
	last := c.waiters == 0
	if last && g.calls[key] == c {
		// Later callers start afresh instead of joining a cancelled call.
		delete(g.calls, key)
	}
	g.mu.Unlock()

	if last {
		c.cancel()
		<-c.done
	}
	var zero T
	return zero, ctx.Err()
}

func (g *Group[T]) run(ctx context.Context, key string, c *call[T], fn func(context.Context) (T, error)) {
	defer c.cancel()
	c.val, c.err = fn(ctx)

	g.mu.Lock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()
	close(c.done)
}
