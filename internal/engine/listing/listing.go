// Package listing finds and removes the files a mod archive lists in its
// descriptors: nested jars (jar-in-jar) and mixin configurations.
package listing

import (
	"sync"

	"go.trai.ch/codev/internal/adapters/zipfs"
)

// Handler lists and removes the files named by one descriptor. The archive
// passed to its methods has the same layout as the one it was loaded from.
type Handler interface {
	// List returns the archive paths of the listed files.
	List(a *zipfs.Archive) []string
	// Remove deletes the listing itself, leaving the listed files alone.
	Remove(a *zipfs.Archive) error
}

// Rule recognises one descriptor format. It returns a nil Handler when the
// archive does not use the format.
type Rule interface {
	Load(a *zipfs.Archive) (Handler, error)
}

// RuleFunc adapts a function to a Rule.
type RuleFunc func(a *zipfs.Archive) (Handler, error)

// Load implements Rule.
func (f RuleFunc) Load(a *zipfs.Archive) (Handler, error) { return f(a) }

// Registry is an ordered set of rules. The first rule to return a handler wins.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRegistry creates a registry trying rules in order.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// Register appends a rule.
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// Load returns the handler of the first matching rule, or nil.
func (r *Registry) Load(a *zipfs.Archive) (Handler, error) {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()

	for _, rule := range rules {
		h, err := rule.Load(a)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
	}
	return nil, nil
}

// DefaultIncludeRules returns the built-in jar-in-jar rules.
func DefaultIncludeRules() []Rule {
	return []Rule{FabricJarInJar{}, ForgeJarJar{}}
}

// DefaultMixinRules returns the built-in mixin rules.
func DefaultMixinRules() []Rule {
	return []Rule{FabricMixins{}, ForgeMixins{}}
}

// removeListed deletes every listed file and then the listing.
func removeListed(a *zipfs.Archive, h Handler) error {
	for _, p := range h.List(a) {
		if err := a.Remove(p); err != nil {
			return err
		}
	}
	return h.Remove(a)
}
