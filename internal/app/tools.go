package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.trai.ch/codev/internal/adapters/fs" //nolint:depguard // Wired in app layer
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/engine/bundle"
	"go.trai.ch/codev/internal/engine/intersection"
	"go.trai.ch/codev/internal/engine/listing"
	"go.trai.ch/codev/internal/engine/mappings"
	"go.trai.ch/zerr"
)

// ServerOptions configuration for the ExtractServer method.
type ServerOptions struct {
	Jar     string
	Version string
	Out     string
	// AllowLegacy copies jars without a bundle index through unchanged.
	AllowLegacy bool
}

// ExtractServer writes the server jar embedded in a bundled server jar.
func (a *App) ExtractServer(ctx context.Context, opts ServerOptions) error {
	bundled, err := bundle.ExtractServer(ctx, opts.Jar, opts.Version, opts.Out, bundle.ExtractOptions{
		AllowLegacy: opts.AllowLegacy,
	})
	if err != nil {
		return err
	}
	if !bundled {
		a.logger.Warn(fmt.Sprintf("%s is not a bundle, copied as is", opts.Jar))
	}
	a.logger.Info(fmt.Sprintf("wrote %s", opts.Out))
	return nil
}

// Libraries lists the libraries a bundled server jar embeds.
func (a *App) Libraries(_ context.Context, jar string) ([]domain.ModuleCoordinate, error) {
	return bundle.Libraries(jar)
}

// SplitOptions configuration for the Split method.
type SplitOptions struct {
	Client string
	Server string
	// Out receives the classes and resources of the client the server lacks.
	Out string
	// Common, when set, receives the client and server merged into one jar
	// with their one-sided members annotated. Meant for servers that
	// predate bundling.
	Common string
}

// Split writes the classes and resources of the client that the server
// lacks, and with opts.Common the part both sides share.
func (a *App) Split(ctx context.Context, opts SplitOptions) error {
	if opts.Common == "" {
		if err := bundle.SplitClient(ctx, opts.Client, opts.Server, opts.Out); err != nil {
			return err
		}
		a.logger.Info(fmt.Sprintf("wrote %s", opts.Out))
		return nil
	}
	if err := bundle.SplitLegacy(ctx, opts.Client, opts.Server, opts.Common, opts.Out); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("wrote %s and %s", opts.Common, opts.Out))
	return nil
}

// IntersectOptions configuration for the Intersect method.
type IntersectOptions struct {
	Inputs   []string
	Out      string
	Strategy string
}

// Intersect writes what every input archive has in common.
func (a *App) Intersect(ctx context.Context, opts IntersectOptions) error {
	if len(opts.Inputs) == 0 {
		return domain.ErrNoIntersectionInputs
	}
	if _, err := intersection.ParseStrategy(opts.Strategy); err != nil {
		return err
	}
	s, err := a.open()
	if err != nil {
		return err
	}
	return a.produce(ctx, s, domain.IntersectionDependency{
		Members:  files(opts.Inputs),
		Strategy: opts.Strategy,
	}, opts.Out)
}

// RemapOptions configuration for the Remap method.
type RemapOptions struct {
	Input     string
	Out       string
	From      string
	To        string
	Mappings  []string
	Classpath []string
}

// Remap writes Input remapped from one namespace to another.
func (a *App) Remap(ctx context.Context, opts RemapOptions) error {
	if len(opts.Mappings) == 0 {
		return zerr.With(domain.ErrInvalidArtifact, "reason", "no mapping files given")
	}
	s, err := a.open()
	if err != nil {
		return err
	}
	return a.produce(ctx, s, domain.RemappedDependency{
		Source:          domain.FileDependency{Path: opts.Input},
		SourceNamespace: domain.CanonicalNamespace(opts.From),
		TargetNamespace: domain.CanonicalNamespace(opts.To),
		Mappings:        files(opts.Mappings),
		Classpath:       opts.Classpath,
	}, opts.Out)
}

// WidenOptions configuration for the Widen method.
type WidenOptions struct {
	Input    string
	Out      string
	Wideners []string
	// Namespace the wideners must declare. Empty accepts any.
	Namespace string
}

// Widen writes Input with the access wideners and transformers applied.
func (a *App) Widen(ctx context.Context, opts WidenOptions) error {
	s, err := a.open()
	if err != nil {
		return err
	}
	return a.produce(ctx, s, domain.WidenedDependency{
		Source:    domain.FileDependency{Path: opts.Input},
		Namespace: domain.CanonicalNamespace(opts.Namespace),
		Wideners:  opts.Wideners,
	}, opts.Out)
}

// MixinsOptions configuration for the Mixins method.
type MixinsOptions struct {
	Input string
	Out   string
	// Required fails when no rule recognises the mixin configs of Input.
	Required bool
}

// Mixins writes Input without its mixin configs.
func (a *App) Mixins(ctx context.Context, opts MixinsOptions) error {
	s, err := a.open()
	if err != nil {
		return err
	}
	return a.produce(ctx, s, domain.StrippedDependency{
		Source:         domain.FileDependency{Path: opts.Input},
		Mixins:         true,
		MixinsRequired: opts.Required,
	}, opts.Out)
}

// DecompileOptions configuration for the Decompile method.
type DecompileOptions struct {
	Input     string
	Out       string
	Classpath []string
}

// Decompile writes the sources jar of Input using the configured decompiler.
func (a *App) Decompile(ctx context.Context, opts DecompileOptions) error {
	s, err := a.open()
	if err != nil {
		return err
	}
	return a.produce(ctx, s, domain.DecompiledDependency{
		Source:    domain.FileDependency{Path: opts.Input},
		Classpath: opts.Classpath,
	}, opts.Out)
}

// IncludesOptions configuration for the Includes method.
type IncludesOptions struct {
	Input  string
	OutDir string
	// Classpath jars are not extracted again when nested in Input.
	Classpath []string
}

// Includes extracts the jars nested in Input and writes Input without them.
// It returns the written files, nested jars first.
func (a *App) Includes(ctx context.Context, opts IncludesOptions) ([]string, error) {
	hashes, err := listing.HashFiles(ctx, opts.Classpath)
	if err != nil {
		return nil, err
	}
	return listing.ExtractIncludes(ctx, a.logger, opts.Input, opts.OutDir, hashes)
}

// ConvertMappings merges mapping files of any supported format and writes
// the result as tiny v2.
func (a *App) ConvertMappings(ctx context.Context, inputs []string, out string) error {
	tree, err := mappings.NewLoader(a.logger).Load(inputs...)
	if err != nil {
		return err
	}
	if len(tree.Namespaces()) < 2 {
		return zerr.With(domain.ErrUnsupportedMappings, "inputs", strings.Join(inputs, ", "))
	}

	var buf bytes.Buffer
	if err := mappings.WriteTiny(&buf, tree); err != nil {
		return err
	}
	if err := fs.WriteFileAtomic(ctx, out, buf.Bytes()); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("wrote %s", out))
	return nil
}

func files(paths []string) []domain.Dependency {
	deps := make([]domain.Dependency, len(paths))
	for i, p := range paths {
		deps[i] = domain.FileDependency{Path: p}
	}
	return deps
}
