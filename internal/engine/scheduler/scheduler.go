// Package scheduler resolves dependencies to files, running each derivation
// stage at most once and reusing the outputs of earlier runs.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/flight"
	"go.trai.ch/zerr"
)

// Options are the per-run collaborators of a Scheduler.
type Options struct {
	Cache      ports.Cache
	Metadata   ports.MetadataClient
	Decompiler ports.Decompiler
	Patcher    ports.Patcher
	Tracer     ports.Tracer
	Logger     ports.Logger
	Trees      *TreeCache
	Pool       *Pool

	// ArtifactsDir receives downloaded game artifacts.
	ArtifactsDir string
}

// Scheduler resolves dependencies to files on disk.
type Scheduler struct {
	cache        ports.Cache
	metadata     ports.MetadataClient
	decompiler   ports.Decompiler
	patcher      ports.Patcher
	tracer       ports.Tracer
	logger       ports.Logger
	trees        *TreeCache
	pool         *Pool
	artifactsDir string

	flight   flight.Group[string]
	mu       sync.RWMutex
	resolved map[string]string
	extras   map[string][]string
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	pool := opts.Pool
	if pool == nil {
		pool = NewPool(0)
	}
	return &Scheduler{
		cache:        opts.Cache,
		metadata:     opts.Metadata,
		decompiler:   opts.Decompiler,
		patcher:      opts.Patcher,
		tracer:       opts.Tracer,
		logger:       opts.Logger,
		trees:        opts.Trees,
		pool:         pool,
		artifactsDir: opts.ArtifactsDir,
		resolved:     make(map[string]string),
		extras:       make(map[string][]string),
	}
}

// Resolve returns the file of dep, producing it and everything it derives
// from when needed. Concurrent calls for the same dependency share one
// resolution, which carries on as long as any caller still waits for it.
func (s *Scheduler) Resolve(ctx context.Context, dep domain.Dependency) (string, error) {
	key := dep.Key()

	s.mu.RLock()
	path, ok := s.resolved[key]
	s.mu.RUnlock()
	if ok {
		return path, nil
	}

	return s.flight.Do(ctx, key, func(ctx context.Context) (string, error) {
		ctx, span := s.tracer.Start(ctx, dep.Describe(), ports.WithDigest(key))
		defer span.End()

		path, err := s.resolve(ctx, span, dep)
		if err != nil {
			span.RecordError(err)
			return "", zerr.With(err, "dependency", dep.Describe())
		}

		s.mu.Lock()
		s.resolved[key] = path
		s.mu.Unlock()
		return path, nil
	})
}

// Extras returns the files produced alongside the file of a resolved dep,
// such as the jars nested in a mod. They are not part of the files of
// dependencies derived from dep.
func (s *Scheduler) Extras(dep domain.Dependency) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extras[dep.Key()]
}

func (s *Scheduler) setExtras(dep domain.Dependency, extras []string) {
	if len(extras) == 0 {
		return
	}
	s.mu.Lock()
	s.extras[dep.Key()] = extras
	s.mu.Unlock()
}

// ResolveAll resolves deps concurrently and returns their files in order.
func (s *Scheduler) ResolveAll(ctx context.Context, deps []domain.Dependency) ([]string, error) {
	paths := make([]string, len(deps))
	g, ctx := s.pool.Group(ctx)
	for i, dep := range deps {
		g.Go(func() error {
			path, err := s.Resolve(ctx, dep)
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (s *Scheduler) resolve(ctx context.Context, span ports.Span, dep domain.Dependency) (string, error) {
	switch d := dep.(type) {
	case domain.FileDependency:
		return resolveFile(d)
	case domain.GameDependency:
		return s.resolveGame(ctx, span, d)
	case domain.GameMappingsDependency:
		return s.resolveGameMappings(ctx, d)
	case domain.RemappedDependency:
		return s.resolveRemapped(ctx, span, d)
	case domain.WidenedDependency:
		return s.resolveWidened(ctx, span, d)
	case domain.DecompiledDependency:
		return s.resolveDecompiled(ctx, span, d)
	case domain.PatchedDependency:
		return s.resolvePatched(ctx, span, d)
	case domain.StrippedDependency:
		return s.resolveStripped(ctx, span, d)
	case domain.IntersectionDependency:
		return s.resolveIntersection(ctx, span, d)
	default:
		return "", zerr.With(domain.ErrUnknownStage, "type", fmt.Sprintf("%T", dep))
	}
}

// cached runs produce through the content cache and marks span on a hit.
func (s *Scheduler) cached(
	ctx context.Context,
	span ports.Span,
	op domain.Operation,
	inputs []string,
	produce ports.Producer,
) (string, error) {
	res, err := s.cachedResult(ctx, span, op, inputs, produce)
	return res.Path, err
}

// cachedResult is cached for stages that publish extra files.
func (s *Scheduler) cachedResult(
	ctx context.Context,
	span ports.Span,
	op domain.Operation,
	inputs []string,
	produce ports.Producer,
) (domain.CacheResult, error) {
	res, err := s.cache.Cached(ctx, op, inputs, produce)
	if err != nil {
		return domain.CacheResult{}, zerr.With(err, "operation", op.Key)
	}
	if res.Hit {
		span.SetAttribute(ports.CachedAttribute, true)
		s.logger.Debug(fmt.Sprintf("%s: reusing %s", op.Key, res.Path))
	}
	return res, nil
}

// logf writes one line to the span log.
func logf(span ports.Span, format string, args ...any) {
	_, _ = fmt.Fprintf(span, format+"\n", args...)
}

func resolveFile(d domain.FileDependency) (string, error) {
	if _, err := os.Stat(d.Path); err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrInputNotFound.Error()), "path", d.Path)
	}
	return d.Path, nil
}

func jarName(dep domain.Dependency, suffix string) string {
	name := dep.Name()
	if v := dep.Version(); v != "" {
		name += "-" + v
	}
	return strings.TrimSuffix(name, ".jar") + suffix + ".jar"
}

func gameArtifactPath(root, version, name, classifier, ext string) string {
	c := domain.ModuleCoordinate{
		Group:      domain.GameGroup,
		Name:       name,
		Version:    version,
		Classifier: classifier,
		Extension:  ext,
	}
	return filepath.Join(root, filepath.FromSlash(c.ArtifactPath()))
}
