package zipfs

import (
	"context"
	"errors"
	"sync"
)

// Group tracks open archives so they can be closed together.
//
// Close closes every member in reverse opening order and reports all close
// errors joined; a failing close never prevents the remaining members from
// being closed. Groups nest: a child created with Sub is closed with its
// parent.
type Group struct {
	mu       sync.Mutex
	archives []*Archive
	children []*Group
	closed   bool
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{}
}

// Open opens path read-only and registers it with the group.
func (g *Group) Open(path string) (*Archive, error) {
	return g.track(Open(path))
}

// Edit opens path for modification and registers it with the group.
func (g *Group) Edit(path string) (*Archive, error) {
	return g.track(Edit(path))
}

// Create creates an archive at path and registers it with the group.
func (g *Group) Create(path string) (*Archive, error) {
	return g.track(Create(path))
}

// Add registers an already opened archive.
func (g *Group) Add(a *Archive) *Archive {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.archives = append(g.archives, a)
	return a
}

func (g *Group) track(a *Archive, err error) (*Archive, error) {
	if err != nil {
		return nil, err
	}
	return g.Add(a), nil
}

// Sub creates a nested group closed together with g.
func (g *Group) Sub() *Group {
	child := NewGroup()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.children = append(g.children, child)
	return child
}

// Discard drops pending writes of every writable member, including nested groups.
func (g *Group) Discard() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.children {
		c.Discard()
	}
	for _, a := range g.archives {
		a.Discard()
	}
}

// Close closes nested groups first, then members in reverse order.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	var errs []error
	for i := len(g.children) - 1; i >= 0; i-- {
		if err := g.children[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(g.archives) - 1; i >= 0; i-- {
		if err := g.archives[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Use runs fn with a fresh group and always closes it. When fn fails, panics
// or ctx is cancelled, pending writes are discarded before closing so no
// partially produced archive is published.
func Use(ctx context.Context, fn func(g *Group) error) (err error) {
	g := NewGroup()

	defer func() {
		if r := recover(); r != nil {
			g.Discard()
			_ = g.Close()
			panic(r)
		}
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			g.Discard()
		}
		if closeErr := g.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	return fn(g)
}
