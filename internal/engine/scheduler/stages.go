package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"go.trai.ch/codev/internal/adapters/fs"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/engine/access"
	"go.trai.ch/codev/internal/engine/bundle"
	"go.trai.ch/codev/internal/engine/intersection"
	"go.trai.ch/codev/internal/engine/listing"
	"go.trai.ch/codev/internal/engine/remap"
	"go.trai.ch/zerr"
)

// Operation keys of the cached stages. Bumping a version discards every
// output an older release produced for that stage.
const (
	opExtractServer   = "extract-server"
	opSplit           = "split"
	opSplitLegacy     = "split-legacy"
	opRemap           = "remap"
	opWiden           = "widen"
	opDecompile       = "decompile"
	opPatch           = "patch"
	opExtractIncludes = "extract-includes"
	opStripMixins     = "strip-mixins"
	opIntersect       = "intersect"

	stageVersion = 1
)

func (s *Scheduler) download(ctx context.Context, version string, side domain.Side, mappings bool) (string, error) {
	meta, err := s.metadata.Version(ctx, version)
	if err != nil {
		return "", err
	}

	dl, ok := meta.SideDownload(side)
	name, classifier, ext := string(side), "", "jar"
	if mappings {
		dl, ok = meta.MappingsDownload(side)
		classifier, ext = "mappings", "txt"
	}
	if !ok {
		err := zerr.With(domain.ErrMissingDownload, "version", version)
		return "", zerr.With(err, "side", string(side))
	}

	dest := gameArtifactPath(s.artifactsDir, version, name, classifier, ext)
	if err := s.metadata.Download(ctx, dl.URL, dl.SHA1, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *Scheduler) resolveGame(ctx context.Context, span ports.Span, d domain.GameDependency) (string, error) {
	if d.Split {
		return s.resolveSplit(ctx, span, d)
	}

	logf(span, "downloading %s %s", d.Side, d.GameVersion)
	jar, err := s.download(ctx, d.GameVersion, d.Side, false)
	if err != nil {
		return "", err
	}
	if d.Side != domain.SideServer {
		return jar, nil
	}

	op := domain.Operation{Key: opExtractServer, Version: stageVersion, Output: jarName(d, "")}
	return s.cached(ctx, span, op, []string{jar}, func(ctx context.Context, out string) error {
		extracted := filepath.Join(filepath.Dir(out), "bundled-"+filepath.Base(out))
		bundled, err := bundle.ExtractServer(ctx, jar, d.GameVersion, extracted, bundle.ExtractOptions{AllowLegacy: true})
		if err != nil {
			return err
		}
		if !bundled {
			logf(span, "%s is not a bundle, using it as is", jar)
		}
		defer os.Remove(extracted) //nolint:errcheck // intermediate file
		return bundle.PrepareServer(ctx, extracted, out)
	})
}

// resolveSplit reduces the client to the classes and resources the server
// lacks, and the server to what both sides can load. A bundled server
// already is that common part. Older servers are merged with the client
// into a common jar, leaving a client jar beside it.
func (s *Scheduler) resolveSplit(ctx context.Context, span ports.Span, d domain.GameDependency) (string, error) {
	if d.Side != domain.SideClient && d.Side != domain.SideServer {
		return "", zerr.With(domain.ErrSplitUnsupported, "side", string(d.Side))
	}
	paths, err := s.ResolveAll(ctx, []domain.Dependency{
		domain.GameDependency{GameVersion: d.GameVersion, Side: domain.SideClient},
		domain.GameDependency{GameVersion: d.GameVersion, Side: domain.SideServer},
	})
	if err != nil {
		return "", err
	}
	client, server := paths[0], paths[1]

	// Resolving the server leaves its download in place.
	bundled, err := isBundle(gameArtifactPath(s.artifactsDir, d.GameVersion, string(domain.SideServer), "", "jar"))
	if err != nil {
		return "", err
	}

	if bundled {
		if d.Side == domain.SideServer {
			return server, nil
		}
		op := domain.Operation{Key: opSplit, Version: stageVersion, Output: jarName(d, "-split")}
		return s.cached(ctx, span, op, paths, func(ctx context.Context, out string) error {
			logf(span, "splitting %s against %s", client, server)
			return s.pool.Do(ctx, func(ctx context.Context) error {
				return bundle.SplitClient(ctx, client, server, out)
			})
		})
	}

	clientName := "client-" + d.GameVersion + "-split.jar"
	op := domain.Operation{Key: opSplitLegacy, Version: stageVersion, Output: "common-" + d.GameVersion + ".jar"}
	res, err := s.cachedResult(ctx, span, op, paths, func(ctx context.Context, out string) error {
		logf(span, "merging %s and %s into a common jar", client, server)
		return s.pool.Do(ctx, func(ctx context.Context) error {
			return bundle.SplitLegacy(ctx, client, server, out, filepath.Join(filepath.Dir(out), clientName))
		})
	})
	if err != nil {
		return "", err
	}
	if d.Side == domain.SideServer {
		return res.Path, nil
	}
	for _, extra := range res.Extras {
		if filepath.Base(extra) == clientName {
			return extra, nil
		}
	}
	return "", zerr.With(zerr.With(domain.ErrInvalidArtifact, "reason", "split left no client jar"), "operation", op.Key)
}

func isBundle(path string) (bool, error) {
	a, err := zipfs.Open(path)
	if err != nil {
		return false, err
	}
	defer a.Close() //nolint:errcheck // read only
	return bundle.IsBundle(a), nil
}

func (s *Scheduler) resolveGameMappings(ctx context.Context, d domain.GameMappingsDependency) (string, error) {
	return s.download(ctx, d.GameVersion, d.Side, true)
}

func (s *Scheduler) resolveRemapped(ctx context.Context, span ports.Span, d domain.RemappedDependency) (string, error) {
	src, err := s.Resolve(ctx, d.Source)
	if err != nil {
		return "", err
	}
	files, err := s.ResolveAll(ctx, d.Mappings)
	if err != nil {
		return "", err
	}

	inputs := append([]string{src}, files...)
	inputs = append(inputs, d.Classpath...)
	op := domain.Operation{
		Key:     opRemap,
		Version: stageVersion,
		Output:  jarName(d, "-"+d.TargetNamespace),
		// The mapping count separates mapping files from classpath jars.
		Params: []string{d.SourceNamespace, d.TargetNamespace, strconv.Itoa(len(files))},
	}
	return s.cached(ctx, span, op, inputs, func(ctx context.Context, out string) error {
		tree, err := s.trees.Load(files...)
		if err != nil {
			return err
		}
		logf(span, "remapping %s from %s to %s", src, d.SourceNamespace, d.TargetNamespace)
		r := remap.New(tree, d.SourceNamespace, d.TargetNamespace)
		return s.pool.Do(ctx, func(ctx context.Context) error {
			return r.Remap(ctx, src, out, d.Classpath, remap.DefaultExtraFiles()...)
		})
	})
}

func (s *Scheduler) resolveWidened(ctx context.Context, span ports.Span, d domain.WidenedDependency) (string, error) {
	src, err := s.Resolve(ctx, d.Source)
	if err != nil {
		return "", err
	}

	inputs := append([]string{src}, d.Wideners...)
	op := domain.Operation{Key: opWiden, Version: stageVersion, Output: jarName(d, "-widened"), Params: []string{d.Namespace}}
	return s.cached(ctx, span, op, inputs, func(ctx context.Context, out string) error {
		data, err := access.Load(d.Namespace, access.DefaultRules(), d.Wideners...)
		if err != nil {
			return err
		}
		logf(span, "widening %d classes of %s", len(data.Modifiers.Classes), src)
		return s.pool.Do(ctx, func(ctx context.Context) error {
			return access.Widen(ctx, data.Modifiers, src, out)
		})
	})
}

func (s *Scheduler) resolveDecompiled(ctx context.Context, span ports.Span, d domain.DecompiledDependency) (string, error) {
	src, err := s.Resolve(ctx, d.Source)
	if err != nil {
		return "", err
	}

	inputs := append([]string{src}, d.Classpath...)
	op := domain.Operation{Key: opDecompile, Version: stageVersion, Output: jarName(d, "-sources")}
	return s.cached(ctx, span, op, inputs, func(ctx context.Context, out string) error {
		logf(span, "decompiling %s", src)
		return s.pool.Do(ctx, func(ctx context.Context) error {
			return s.decompiler.Decompile(ctx, src, d.Classpath, out)
		})
	})
}

func (s *Scheduler) resolvePatched(ctx context.Context, span ports.Span, d domain.PatchedDependency) (string, error) {
	src, err := s.Resolve(ctx, d.Source)
	if err != nil {
		return "", err
	}
	if s.patcher == nil {
		return "", domain.ErrPatcherNotConfigured
	}

	inputs := append([]string{src, d.Patches}, d.Classpath...)
	op := domain.Operation{Key: opPatch, Version: stageVersion, Output: jarName(d, "-patched")}
	return s.cached(ctx, span, op, inputs, func(ctx context.Context, out string) error {
		raw := filepath.Join(filepath.Dir(out), "raw-"+filepath.Base(out))
		defer os.Remove(raw) //nolint:errcheck // intermediate file

		logf(span, "patching %s with %s", src, d.Patches)
		if err := s.pool.Do(ctx, func(ctx context.Context) error {
			return s.patcher.Patch(ctx, src, d.Patches, d.Classpath, raw)
		}); err != nil {
			return err
		}
		return completePatched(ctx, src, raw, out)
	})
}

// completePatched writes patched to out together with the entries of
// original the patcher left out.
func completePatched(ctx context.Context, original, patched, out string) error {
	return zipfs.Use(ctx, func(g *zipfs.Group) error {
		from, err := g.Open(original)
		if err != nil {
			return err
		}
		done, err := g.Open(patched)
		if err != nil {
			return err
		}
		dst, err := g.Create(out)
		if err != nil {
			return err
		}
		for _, p := range done.Paths() {
			if err := dst.CopyFrom(done, p, p); err != nil {
				return err
			}
		}
		for _, p := range from.Paths() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if done.Has(p) {
				continue
			}
			if err := dst.CopyFrom(from, p, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Scheduler) resolveStripped(ctx context.Context, span ports.Span, d domain.StrippedDependency) (string, error) {
	path, err := s.Resolve(ctx, d.Source)
	if err != nil {
		return "", err
	}

	if d.Includes {
		src := path
		inputs := append([]string{src}, d.Classpath...)
		op := domain.Operation{Key: opExtractIncludes, Version: stageVersion, Output: filepath.Base(src)}
		res, err := s.cachedResult(ctx, span, op, inputs, func(ctx context.Context, out string) error {
			hashes, err := listing.HashFiles(ctx, d.Classpath)
			if err != nil {
				return err
			}
			outputs, err := listing.ExtractIncludes(ctx, s.logger, src, filepath.Dir(out), hashes)
			if err != nil {
				return err
			}
			logf(span, "extracted %d nested jars from %s", len(outputs)-1, src)
			if len(outputs) == 1 && outputs[0] == src {
				data, err := os.ReadFile(src) //nolint:gosec // Path is a resolved dependency
				if err != nil {
					return zerr.With(zerr.Wrap(err, domain.ErrFileOpenFailed.Error()), "path", src)
				}
				return fs.WriteFileAtomic(ctx, out, data)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		path = res.Path
		s.setExtras(d, res.Extras)
	}

	if d.Mixins {
		src := path
		op := domain.Operation{Key: opStripMixins, Version: stageVersion, Output: filepath.Base(src)}
		if d.MixinsRequired {
			op.Params = []string{"required"}
		}
		path, err = s.cached(ctx, span, op, []string{src}, func(ctx context.Context, out string) error {
			logf(span, "removing mixin configs from %s", src)
			if d.MixinsRequired {
				return listing.RemoveMixins(ctx, src, out)
			}
			return listing.StripMixins(ctx, src, out)
		})
		if err != nil {
			return "", err
		}
	}
	return path, nil
}

func (s *Scheduler) resolveIntersection(ctx context.Context, span ports.Span, d domain.IntersectionDependency) (string, error) {
	strategy, err := intersection.ParseStrategy(d.Strategy)
	if err != nil {
		return "", err
	}
	if len(d.Members) == 0 {
		return "", domain.ErrNoIntersectionInputs
	}
	paths, err := s.ResolveAll(ctx, d.Members)
	if err != nil {
		return "", err
	}

	op := domain.Operation{
		Key:     opIntersect,
		Version: stageVersion,
		Output:  jarName(d, "-intersection"),
		Params:  []string{strategy.String()},
	}
	return s.cached(ctx, span, op, paths, func(ctx context.Context, out string) error {
		logf(span, "intersecting %d archives (%s)", len(paths), strategy)
		return s.pool.Do(ctx, func(ctx context.Context) error {
			return intersection.Archives(ctx, paths, out, strategy)
		})
	})
}
