package app

import (
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/zerr"
)

// dependencies converts artifacts, given in dependency order, into the
// dependencies the scheduler resolves.
func (a *App) dependencies(cfg *domain.Config, artifacts []*domain.Artifact) (map[string]domain.Dependency, error) {
	deps := make(map[string]domain.Dependency, len(artifacts))
	for _, art := range artifacts {
		dep, err := a.dependency(cfg, art, deps)
		if err != nil {
			return nil, zerr.With(err, "artifact", art.Name)
		}
		deps[art.Name] = dep
	}
	return deps, nil
}

func (a *App) dependency(cfg *domain.Config, art *domain.Artifact, built map[string]domain.Dependency) (domain.Dependency, error) {
	var dep domain.Dependency
	if art.Path != "" {
		dep = domain.FileDependency{Path: art.Path, Coordinate: domain.ModuleCoordinate{Name: art.Name}}
	} else {
		dep = domain.GameDependency{GameVersion: art.Version, Side: art.Side}
	}

	// Namespace the artifact is in after the stages so far. Unknown until
	// the first remap.
	namespace := ""

	for i, stage := range art.Stages {
		classpath, err := a.expand(cfg, stage.Classpath)
		if err != nil {
			return nil, zerr.With(err, "stage", i)
		}

		switch stage.Kind {
		case domain.StageSplit:
			game, ok := dep.(domain.GameDependency)
			if !ok || i > 0 {
				return nil, zerr.With(domain.ErrInvalidArtifact, "reason", "split must be the first stage of a game jar")
			}
			game.Split = true
			dep = game

		case domain.StageRemap:
			files, err := a.expand(cfg, stage.Mappings)
			if err != nil {
				return nil, zerr.With(err, "stage", i)
			}
			mappings := make([]domain.Dependency, 0, len(files)+1)
			if stage.GameMappings {
				if art.Version == "" {
					return nil, zerr.With(domain.ErrInvalidArtifact, "reason", "game mappings need a game version")
				}
				mappings = append(mappings, domain.GameMappingsDependency{GameVersion: art.Version, Side: art.Side})
			}
			for _, f := range files {
				mappings = append(mappings, domain.FileDependency{Path: f})
			}
			dep = domain.RemappedDependency{
				Source:          dep,
				SourceNamespace: domain.CanonicalNamespace(stage.From),
				TargetNamespace: domain.CanonicalNamespace(stage.To),
				Mappings:        mappings,
				Classpath:       classpath,
			}
			namespace = domain.CanonicalNamespace(stage.To)

		case domain.StageWiden:
			wideners, err := a.expand(cfg, stage.Wideners)
			if err != nil {
				return nil, zerr.With(err, "stage", i)
			}
			ns := namespace
			if stage.From != "" {
				ns = domain.CanonicalNamespace(stage.From)
			}
			dep = domain.WidenedDependency{Source: dep, Namespace: ns, Wideners: wideners}

		case domain.StageStripMixins:
			dep = domain.StrippedDependency{Source: dep, Mixins: true, MixinsRequired: stage.Required}

		case domain.StageExtractIncludes:
			dep = domain.StrippedDependency{Source: dep, Includes: true, Classpath: classpath}

		case domain.StagePatch:
			patches, err := a.expand(cfg, []string{stage.Patches})
			if err != nil {
				return nil, zerr.With(err, "stage", i)
			}
			if len(patches) != 1 {
				return nil, zerr.With(domain.ErrInvalidArtifact, "reason", "patch needs exactly one patches file")
			}
			dep = domain.PatchedDependency{Source: dep, Patches: patches[0], Classpath: classpath}

		case domain.StageDecompile:
			dep = domain.DecompiledDependency{Source: dep, Classpath: classpath}

		case domain.StageIntersect:
			members := []domain.Dependency{dep}
			for _, name := range stage.With {
				other, ok := built[name]
				if !ok {
					return nil, zerr.With(domain.ErrUnknownArtifact, "artifact", name)
				}
				members = append(members, other)
			}
			dep = domain.IntersectionDependency{Members: members, Strategy: stage.Strategy}

		default:
			return nil, zerr.With(domain.ErrUnknownStage, "kind", string(stage.Kind))
		}
	}
	return dep, nil
}

// expand resolves glob patterns against the configuration root.
func (a *App) expand(cfg *domain.Config, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	return a.resolver.ResolveInputs(patterns, cfg.Root)
}
