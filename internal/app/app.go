// Package app implements the application layer for codev.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.trai.ch/codev/internal/adapters/metadata" //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/adapters/shell"    //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	caches       ports.CacheOpener
	metadata     *metadata.Opener
	schedulers   *scheduler.Factory
	executor     *shell.Executor
	resolver     ports.InputResolver
	tracer       ports.Tracer

	configPath string
	offline    bool
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	caches ports.CacheOpener,
	meta *metadata.Opener,
	schedulers *scheduler.Factory,
	executor *shell.Executor,
	resolver ports.InputResolver,
	tracer ports.Tracer,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		caches:       caches,
		metadata:     meta,
		schedulers:   schedulers,
		executor:     executor,
		resolver:     resolver,
		tracer:       tracer,
	}
}

// WithConfigPath makes the App load the configuration at path instead of
// searching for codev.yaml.
func (a *App) WithConfigPath(path string) *App {
	a.configPath = path
	return a
}

// WithOffline forbids network access regardless of the configuration.
func (a *App) WithOffline(offline bool) *App {
	a.offline = offline
	return a
}

// session is the configuration of one command with the collaborators
// opened for it.
type session struct {
	cfg   *domain.Config
	cache ports.Cache
	sched *scheduler.Scheduler
}

func (a *App) open() (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to get working directory")
	}
	cfg, err := a.configLoader.Load(cwd, a.configPath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	if a.offline {
		cfg.Offline = true
	}

	cache := a.caches.Open(cfg.CacheDir)
	meta, err := a.metadata.Open(metadata.Options{
		CacheDir:    cfg.CacheDir,
		ManifestURL: cfg.ManifestURL,
		Offline:     cfg.Offline,
	})
	if err != nil {
		return nil, err
	}

	sched, err := a.schedulers.New(scheduler.Options{
		Cache:        cache,
		Metadata:     meta,
		Decompiler:   shell.NewDecompiler(a.executor, cfg.Decompiler),
		Patcher:      shell.NewPatcher(a.executor, cfg.Patcher),
		Pool:         scheduler.NewPool(cfg.Parallelism),
		ArtifactsDir: domain.ArtifactsPath(cfg.CacheDir),
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, cache: cache, sched: sched}, nil
}

// produce resolves dep and places its file at out.
func (a *App) produce(ctx context.Context, s *session, dep domain.Dependency, out string) error {
	a.tracer.EmitPlan(ctx, []string{dep.Describe()})
	path, err := s.sched.Resolve(ctx, dep)
	if err != nil {
		return errors.Join(domain.ErrPipelineFailed, err)
	}
	if err := s.cache.Materialize(path, out); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("wrote %s", out))
	return nil
}

// BuildOptions configuration for the Build method.
type BuildOptions struct {
	// OutputDir receives a copy of every built artifact. Empty leaves the
	// artifacts in the cache.
	OutputDir string
}

// Build produces the named artifacts and every artifact they intersect
// with. Without names, every configured artifact is built.
func (a *App) Build(ctx context.Context, names []string, opts BuildOptions) error {
	s, err := a.open()
	if err != nil {
		return err
	}

	graph := domain.NewGraph()
	for i := range s.cfg.Artifacts {
		if err := graph.AddArtifact(&s.cfg.Artifacts[i]); err != nil {
			return err
		}
	}
	if err := graph.Validate(); err != nil {
		return err
	}

	var artifacts []*domain.Artifact
	if len(names) == 0 {
		for art := range graph.Walk() {
			artifacts = append(artifacts, art)
		}
	} else {
		artifacts, err = graph.Closure(names...)
		if err != nil {
			return err
		}
	}
	if len(artifacts) == 0 {
		a.logger.Warn("no artifacts configured")
		return nil
	}

	deps, err := a.dependencies(s.cfg, artifacts)
	if err != nil {
		return err
	}

	plan := make([]string, len(artifacts))
	ordered := make([]domain.Dependency, len(artifacts))
	for i, art := range artifacts {
		plan[i] = art.Name
		ordered[i] = deps[art.Name]
	}
	a.tracer.EmitPlan(ctx, plan)

	paths, err := s.sched.ResolveAll(ctx, ordered)
	if err != nil {
		return errors.Join(domain.ErrPipelineFailed, err)
	}

	var errs error
	for i, art := range artifacts {
		// Files such as extracted nested jars travel with the artifact
		// under their own names.
		files := map[string]string{paths[i]: art.Name + filepath.Ext(paths[i])}
		order := []string{paths[i]}
		for _, extra := range s.sched.Extras(ordered[i]) {
			files[extra] = filepath.Base(extra)
			order = append(order, extra)
		}

		for _, path := range order {
			if opts.OutputDir == "" {
				a.logger.Info(fmt.Sprintf("%s: %s", art.Name, path))
				continue
			}
			out := filepath.Join(opts.OutputDir, files[path])
			if err := s.cache.Materialize(path, out); err != nil {
				errs = errors.Join(errs, zerr.With(err, "artifact", art.Name))
				continue
			}
			a.logger.Info(fmt.Sprintf("%s: %s", art.Name, out))
		}
	}
	return errs
}

// FetchOptions configuration for the Fetch method.
type FetchOptions struct {
	Version  string
	Side     domain.Side
	Split    bool
	Mappings bool
	// Out receives a copy of the jar. The mappings, when fetched, are
	// written next to it.
	Out string
}

// Fetch downloads the jar of a game version and optionally its
// obfuscation map, returning the cached paths.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) ([]string, error) {
	s, err := a.open()
	if err != nil {
		return nil, err
	}

	deps := []domain.Dependency{
		domain.GameDependency{GameVersion: opts.Version, Side: opts.Side, Split: opts.Split},
	}
	if opts.Mappings {
		deps = append(deps, domain.GameMappingsDependency{GameVersion: opts.Version, Side: opts.Side})
	}

	paths, err := s.sched.ResolveAll(ctx, deps)
	if err != nil {
		return nil, errors.Join(domain.ErrPipelineFailed, err)
	}
	if opts.Out == "" {
		return paths, nil
	}

	outs := []string{opts.Out}
	if opts.Mappings {
		outs = append(outs, filepath.Join(filepath.Dir(opts.Out), filepath.Base(paths[1])))
	}
	for i, out := range outs {
		if err := s.cache.Materialize(paths[i], out); err != nil {
			return nil, err
		}
	}
	return outs, nil
}

// Clean removes the content cache, downloaded artifacts and cached
// version metadata.
func (a *App) Clean(_ context.Context) error {
	s, err := a.open()
	if err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("removing %s...", s.cfg.CacheDir))
	if err := s.cache.Clean(); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("removed %s", s.cfg.CacheDir))
	return nil
}
