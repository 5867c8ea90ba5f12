// Package domain contains the core domain models of codev.
package domain

import (
	"iter"
	"strings"

	"go.trai.ch/zerr"
)

// Graph orders artifacts so that every artifact comes after the artifacts
// it intersects with.
type Graph struct {
	artifacts map[string]*Artifact
	names     []string
	order     []string
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		artifacts: make(map[string]*Artifact),
	}
}

// AddArtifact adds an artifact to the graph.
// It returns an error if an artifact with the same name already exists.
func (g *Graph) AddArtifact(a *Artifact) error {
	if _, exists := g.artifacts[a.Name]; exists {
		return zerr.With(ErrArtifactAlreadyExists, "artifact", a.Name)
	}
	g.artifacts[a.Name] = a
	g.names = append(g.names, a.Name)
	return nil
}

// Validate checks for unknown references and cycles using a topological
// sort. Artifacts without an order between them keep the order they were
// added in.
func (g *Graph) Validate() error {
	g.order = make([]string, 0, len(g.names))
	visited := make(map[string]int) // 0: unvisited, 1: visiting, 2: visited
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		visited[name] = 1
		path = append(path, name)

		for _, ref := range g.artifacts[name].References() {
			if _, ok := g.artifacts[ref]; !ok {
				return zerr.With(zerr.With(ErrUnknownArtifact, "artifact", ref), "referenced_by", name)
			}
			if visited[ref] == 1 {
				return cycleError(path, ref)
			}
			if visited[ref] == 0 {
				if err := visit(ref); err != nil {
					return err
				}
			}
		}

		visited[name] = 2
		path = path[:len(path)-1]
		g.order = append(g.order, name)
		return nil
	}

	for _, name := range g.names {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

func cycleError(path []string, ref string) error {
	start := 0
	for i, name := range path {
		if name == ref {
			start = i
			break
		}
	}
	cycle := append(append([]string{}, path[start:]...), ref)
	return zerr.With(ErrCycleDetected, "cycle", strings.Join(cycle, " -> "))
}

// Walk yields artifacts in dependency order.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[*Artifact] {
	return func(yield func(*Artifact) bool) {
		for _, name := range g.order {
			if !yield(g.artifacts[name]) {
				return
			}
		}
	}
}

// Closure returns the named artifacts and everything they intersect with,
// in dependency order.
func (g *Graph) Closure(names ...string) ([]*Artifact, error) {
	want := make(map[string]bool)
	var mark func(name string) error
	mark = func(name string) error {
		a, ok := g.artifacts[name]
		if !ok {
			return zerr.With(ErrUnknownArtifact, "artifact", name)
		}
		if want[name] {
			return nil
		}
		want[name] = true
		for _, ref := range a.References() {
			if err := mark(ref); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := mark(name); err != nil {
			return nil, err
		}
	}

	var out []*Artifact
	for a := range g.Walk() {
		if want[a.Name] {
			out = append(out, a)
		}
	}
	return out, nil
}
