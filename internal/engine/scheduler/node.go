package scheduler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/codev/internal/adapters/fs"        //nolint:depguard // Wired in engine wiring
	"go.trai.ch/codev/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/codev/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/engine/mappings"
)

// NodeID is the unique identifier for the scheduler Graft node.
const NodeID graft.ID = "engine.scheduler"

// Factory creates schedulers once the configuration of a run is known.
type Factory struct {
	logger ports.Logger
	tracer ports.Tracer
	hasher ports.Hasher
}

// NewFactory creates a Factory sharing logger, tracer and hasher between runs.
func NewFactory(logger ports.Logger, tracer ports.Tracer, hasher ports.Hasher) *Factory {
	return &Factory{logger: logger, tracer: tracer, hasher: hasher}
}

// New creates a Scheduler for opts. Collaborators opts leaves unset are
// filled from the factory.
func (f *Factory) New(opts Options) (*Scheduler, error) {
	if opts.Logger == nil {
		opts.Logger = f.logger
	}
	if opts.Tracer == nil {
		opts.Tracer = f.tracer
	}
	if opts.Trees == nil {
		trees, err := NewTreeCache(mappings.NewLoader(opts.Logger), f.hasher, DefaultTreeCacheSize)
		if err != nil {
			return nil, err
		}
		opts.Trees = trees
	}
	return New(opts), nil
}

func init() {
	graft.Register(graft.Node[*Factory]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			logger.NodeID,
			telemetry.TracerNodeID,
			fs.HasherNodeID,
		},
		Run: func(ctx context.Context) (*Factory, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}

			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}

			return NewFactory(log, tracer, hasher), nil
		},
	})
}
