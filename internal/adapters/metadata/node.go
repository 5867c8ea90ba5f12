package metadata

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/codev/internal/adapters/logger"
	"go.trai.ch/codev/internal/core/ports"
)

// NodeID is the unique identifier for the metadata opener Graft node.
const NodeID graft.ID = "adapter.metadata"

// Opener creates clients once the cache root and network mode are known.
type Opener struct {
	logger ports.Logger
}

// NewOpener creates an Opener logging through logger.
func NewOpener(logger ports.Logger) *Opener {
	return &Opener{logger: logger}
}

// Open creates a Client for opts.
func (o *Opener) Open(opts Options) (*Client, error) {
	return NewClient(o.logger, opts)
}

func init() {
	graft.Register(graft.Node[*Opener]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (*Opener, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewOpener(log), nil
		},
	})
}
