package cas

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/codev/internal/adapters/fs"
	"go.trai.ch/codev/internal/core/ports"
)

// NodeID is the unique identifier for the content cache opener Graft node.
const NodeID graft.ID = "adapter.content_cache"

// Opener opens stores once the cache root is known from configuration.
type Opener struct {
	hasher ports.Hasher
}

var _ ports.CacheOpener = (*Opener)(nil)

// NewOpener creates an Opener fingerprinting inputs with hasher.
func NewOpener(hasher ports.Hasher) *Opener {
	return &Opener{hasher: hasher}
}

// Open implements ports.CacheOpener.
func (o *Opener) Open(root string) ports.Cache {
	return NewStore(root, o.hasher)
}

func init() {
	graft.Register(graft.Node[ports.CacheOpener]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{fs.HasherNodeID},
		Run: func(ctx context.Context) (ports.CacheOpener, error) {
			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}
			return NewOpener(hasher), nil
		},
	})
}
