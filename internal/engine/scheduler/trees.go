package scheduler

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/engine/mappings"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

// DefaultTreeCacheSize is the number of merged mapping trees kept in memory.
const DefaultTreeCacheSize = 16

// TreeCache keeps recently merged mapping trees keyed by the fingerprints
// of their files. Trees are shared and must not be modified.
type TreeCache struct {
	loader *mappings.Loader
	hasher ports.Hasher
	trees  *lru.Cache[string, *mappings.Tree]
	flight singleflight.Group
}

// NewTreeCache creates a cache holding at most size trees.
func NewTreeCache(loader *mappings.Loader, hasher ports.Hasher, size int) (*TreeCache, error) {
	if size < 1 {
		size = DefaultTreeCacheSize
	}
	trees, err := lru.New[string, *mappings.Tree](size)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrTreeCacheCreateFailed.Error()), "size", size)
	}
	return &TreeCache{loader: loader, hasher: hasher, trees: trees}, nil
}

// Load returns the tree merged from paths, reading the files only when no
// tree with the same content is cached.
func (c *TreeCache) Load(paths ...string) (*mappings.Tree, error) {
	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		fp, err := c.hasher.Fingerprint(p)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fp)
	}
	key := c.hasher.Digest(parts...)

	if t, ok := c.trees.Get(key); ok {
		return t, nil
	}
	v, err, _ := c.flight.Do(key, func() (any, error) {
		t, err := c.loader.Load(paths...)
		if err != nil {
			return nil, err
		}
		c.trees.Add(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mappings.Tree), nil //nolint:forcetypeassert // the flight only returns trees
}

// Len returns the number of cached trees.
func (c *TreeCache) Len() int {
	return c.trees.Len()
}
