// Package remap rewrites class archives from one mapping namespace to another.
package remap

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/codev/internal/engine/mappings"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Remapper maps names from one namespace of a tree to another. Members not
// declared by their owner are looked up through its super types.
type Remapper struct {
	tree     *mappings.Tree
	from, to string
	identity bool

	classes map[string]string
	fields  map[string]string
	methods map[string]string

	mu        sync.Mutex
	hierarchy map[string][]string
	resolved  map[string]string
}

var _ classfile.Mapper = (*Remapper)(nil)

// New builds a remapper from namespace from to namespace to. When either
// namespace is not part of the tree every name maps to itself.
func New(tree *mappings.Tree, from, to string) *Remapper {
	from, to = domain.CanonicalNamespace(from), domain.CanonicalNamespace(to)
	r := &Remapper{
		tree:      tree,
		from:      from,
		to:        to,
		classes:   make(map[string]string),
		fields:    make(map[string]string),
		methods:   make(map[string]string),
		hierarchy: make(map[string][]string),
		resolved:  make(map[string]string),
	}

	fromID, toID := tree.NamespaceID(from), tree.NamespaceID(to)
	if fromID == mappings.NullNamespaceID || toID == mappings.NullNamespaceID || fromID == toID {
		r.identity = true
		return r
	}

	for _, c := range tree.Classes() {
		owner := c.Name(fromID)
		if mapped := c.Name(toID); mapped != owner {
			r.classes[owner] = mapped
		}
		for _, f := range c.Fields() {
			if mapped := f.Name(toID); mapped != f.Name(fromID) {
				r.fields[owner+"."+f.Name(fromID)] = mapped
			}
		}
		for _, m := range c.Methods() {
			desc := tree.MapDesc(m.Desc, mappings.SourceNamespaceID, fromID)
			if mapped := m.Name(toID); mapped != m.Name(fromID) {
				r.methods[owner+"."+m.Name(fromID)+desc] = mapped
			}
		}
	}
	return r
}

// From returns the source namespace.
func (r *Remapper) From() string { return r.from }

// To returns the target namespace.
func (r *Remapper) To() string { return r.to }

// Tree returns the mappings r was built from.
func (r *Remapper) Tree() *mappings.Tree { return r.tree }

// Identity reports whether r leaves every name unchanged.
func (r *Remapper) Identity() bool { return r.identity }

// Class implements classfile.Mapper. Nested classes without their own
// mapping keep their simple name under the mapped outer class.
func (r *Remapper) Class(name string) string {
	if r.identity {
		return name
	}
	if mapped, ok := r.classes[name]; ok {
		return mapped
	}
	if i := strings.LastIndexByte(name, '$'); i > 0 && !strings.Contains(name[i:], "/") {
		return r.Class(name[:i]) + name[i:]
	}
	return name
}

// Field implements classfile.Mapper. Field descriptors are ignored.
func (r *Remapper) Field(owner, name, _ string) string {
	if r.identity {
		return name
	}
	return r.member(r.fields, "f", owner, "."+name, name)
}

// Method implements classfile.Mapper.
func (r *Remapper) Method(owner, name, desc string) string {
	if r.identity || strings.HasPrefix(name, "<") {
		return name
	}
	return r.member(r.methods, "m", owner, "."+name+desc, name)
}

func (r *Remapper) member(table map[string]string, kind, owner, key, name string) string {
	if mapped, ok := table[owner+key]; ok {
		return mapped
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	memo := kind + owner + key
	if mapped, ok := r.resolved[memo]; ok {
		return mapped
	}
	mapped := name
	if found, ok := r.inherited(table, owner, key, map[string]bool{owner: true}); ok {
		mapped = found
	}
	r.resolved[memo] = mapped
	return mapped
}

func (r *Remapper) inherited(table map[string]string, owner, key string, seen map[string]bool) (string, bool) {
	for _, super := range r.hierarchy[owner] {
		if seen[super] {
			continue
		}
		seen[super] = true
		if mapped, ok := table[super+key]; ok {
			return mapped, true
		}
		if mapped, ok := r.inherited(table, super, key, seen); ok {
			return mapped, true
		}
	}
	return "", false
}

// AddHierarchy records the direct super types of every class in the given
// archives. Archives are read concurrently; when a class appears in several,
// the earliest archive wins.
func (r *Remapper) AddHierarchy(ctx context.Context, paths ...string) error {
	if r.identity {
		return nil
	}

	results := make([]map[string][]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			a, err := zipfs.Open(path)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // read-only handle

			supers, err := readHierarchy(ctx, a)
			results[i] = supers
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, supers := range results {
		r.addHierarchy(supers)
	}
	return nil
}

func (r *Remapper) addHierarchy(supers map[string][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, types := range supers {
		if _, ok := r.hierarchy[name]; !ok {
			r.hierarchy[name] = types
		}
	}
	clear(r.resolved)
}

func readHierarchy(ctx context.Context, a *zipfs.Archive) (map[string][]string, error) {
	supers := make(map[string][]string)
	for _, p := range a.Glob("**/*.class") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := a.ReadFile(p)
		if err != nil {
			return nil, err
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "entry", p), "archive", a.Path())
		}
		var types []string
		if s := cf.SuperName(); s != "" {
			types = append(types, s)
		}
		supers[cf.Name()] = append(types, cf.InterfaceNames()...)
	}
	return supers, nil
}
