package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/codev/internal/adapters/cas"       //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/adapters/fs"        //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/adapters/metadata"  //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/adapters/shell"     //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/engine/scheduler"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App    *App
	Logger ports.Logger
	Tracer ports.Tracer
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			cas.NodeID,
			metadata.NodeID,
			scheduler.NodeID,
			shell.NodeID,
			fs.ResolverNodeID,
			telemetry.TracerNodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	caches, err := graft.Dep[ports.CacheOpener](ctx)
	if err != nil {
		return nil, err
	}

	meta, err := graft.Dep[*metadata.Opener](ctx)
	if err != nil {
		return nil, err
	}

	schedulers, err := graft.Dep[*scheduler.Factory](ctx)
	if err != nil {
		return nil, err
	}

	executor, err := graft.Dep[*shell.Executor](ctx)
	if err != nil {
		return nil, err
	}

	resolver, err := graft.Dep[ports.InputResolver](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, log, caches, meta, schedulers, executor, resolver, tracer), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:    app,
		Logger: log,
		Tracer: tracer,
	}, nil
}
