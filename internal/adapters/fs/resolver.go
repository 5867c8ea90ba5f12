package fs

import (
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.InputResolver = (*Resolver)(nil)

// Resolver expands classpath and input patterns with doublestar globbing.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveInputs resolves the given patterns relative to root into a sorted,
// de-duplicated list of existing paths. A pattern matching nothing is an error.
func (r *Resolver) ResolveInputs(inputs []string, root string) ([]string, error) {
	uniquePaths := make(map[string]bool)

	for _, input := range inputs {
		path := input
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, input)
		}

		matches, err := doublestar.FilepathGlob(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrInputNotFound.Error()), "path", path)
		}
		if len(matches) == 0 {
			return nil, zerr.With(domain.ErrInputNotFound, "path", path)
		}

		for _, match := range matches {
			uniquePaths[match] = true
		}
	}

	result := make([]string, 0, len(uniquePaths))
	for path := range uniquePaths {
		result = append(result, path)
	}
	sort.Strings(result)

	return result, nil
}
