// Package config provides the configuration loader for codev.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

var _ ports.ConfigLoader = (*Loader)(nil)

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads the configuration at path, or the nearest codev.yaml at or
// above cwd when path is empty. Without a file the defaults rooted at cwd
// are returned.
func (l *Loader) Load(cwd, path string) (*domain.Config, error) {
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	if path == "" {
		found, ok := findConfiguration(cwd)
		if !ok {
			l.Logger.Debug("no " + domain.ConfigFileName + " found, using defaults")
			return defaults(filepath.Clean(cwd)), nil
		}
		path = found
	}

	var file Codevfile
	if err := readAndUnmarshalYAML(path, &file); err != nil {
		return nil, zerr.With(err, "path", path)
	}
	cfg, err := buildConfig(resolveRoot(path, file.Root), &file)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return cfg, nil
}

// findConfiguration walks up from cwd looking for codev.yaml.
func findConfiguration(cwd string) (string, bool) {
	currentDir := filepath.Clean(cwd)
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			return "", false
		}
		currentDir = parentDir
	}
}

func defaults(root string) *domain.Config {
	return &domain.Config{
		Root:        root,
		CacheDir:    filepath.Join(root, domain.DefaultCachePath()),
		Parallelism: runtime.NumCPU(),
		ManifestURL: domain.DefaultVersionManifestURL,
	}
}

func buildConfig(root string, file *Codevfile) (*domain.Config, error) {
	cfg := defaults(root)
	if file.Cache != "" {
		cfg.CacheDir = resolvePath(root, file.Cache)
	}
	if file.Parallelism > 0 {
		cfg.Parallelism = file.Parallelism
	}
	if file.Manifest != "" {
		cfg.ManifestURL = file.Manifest
	}
	cfg.Offline = file.Offline
	cfg.Decompiler = file.Decompiler
	cfg.Patcher = file.Patcher

	g := domain.NewGraph()
	cfg.Artifacts = make([]domain.Artifact, 0, len(file.Artifacts))
	for i, dto := range file.Artifacts {
		if dto == nil {
			return nil, zerr.With(domain.ErrInvalidArtifact, "index", i)
		}
		a, err := buildArtifact(root, dto)
		if err != nil {
			return nil, zerr.With(err, "artifact", dto.Name)
		}
		cfg.Artifacts = append(cfg.Artifacts, a)
	}
	for i := range cfg.Artifacts {
		if err := g.AddArtifact(&cfg.Artifacts[i]); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildArtifact(root string, dto *ArtifactDTO) (domain.Artifact, error) {
	a := domain.Artifact{Name: dto.Name, Version: dto.Version}
	if dto.Name == "" {
		return a, zerr.With(domain.ErrInvalidArtifact, "reason", "missing name")
	}
	switch {
	case dto.Path != "" && dto.Version != "":
		return a, zerr.With(domain.ErrInvalidArtifact, "reason", "path and version are exclusive")
	case dto.Path != "":
		a.Path = resolvePath(root, dto.Path)
	case dto.Version != "":
		side := dto.Side
		if side == "" {
			side = string(domain.SideClient)
		}
		s, err := domain.ParseSide(side)
		if err != nil {
			return a, zerr.With(err, "side", side)
		}
		a.Side = s
	default:
		return a, zerr.With(domain.ErrInvalidArtifact, "reason", "missing path or version")
	}

	for i, s := range dto.Stages {
		if s == nil {
			return a, zerr.With(domain.ErrUnknownStage, "stage", i)
		}
		stage, err := buildStage(root, s)
		if err != nil {
			return a, zerr.With(err, "stage", i)
		}
		a.Stages = append(a.Stages, stage)
	}
	return a, nil
}

func buildStage(root string, dto *StageDTO) (domain.Stage, error) {
	stage := domain.Stage{
		Kind:         domain.StageKind(dto.Kind),
		From:         dto.From,
		To:           dto.To,
		Mappings:     resolvePaths(root, dto.Mappings),
		GameMappings: dto.GameMappings,
		Classpath:    resolvePaths(root, dto.Classpath),
		Wideners:     resolvePaths(root, dto.Wideners),
		Required:     dto.Required,
		With:         dto.With,
		Strategy:     dto.Strategy,
	}
	if dto.Patches != "" {
		stage.Patches = resolvePath(root, dto.Patches)
	}

	switch stage.Kind {
	case domain.StageRemap:
		if stage.From == "" || stage.To == "" {
			return stage, zerr.With(domain.ErrInvalidArtifact, "reason", "remap needs from and to")
		}
		if len(stage.Mappings) == 0 && !stage.GameMappings {
			return stage, zerr.With(domain.ErrInvalidArtifact, "reason", "remap needs mappings")
		}
	case domain.StageIntersect:
		if len(stage.With) == 0 {
			return stage, zerr.With(domain.ErrNoIntersectionInputs, "kind", dto.Kind)
		}
	case domain.StagePatch:
		if stage.Patches == "" {
			return stage, zerr.With(domain.ErrInvalidArtifact, "reason", "patch needs patches")
		}
	case domain.StageSplit, domain.StageWiden, domain.StageStripMixins, domain.StageExtractIncludes, domain.StageDecompile:
	default:
		return stage, zerr.With(domain.ErrUnknownStage, "kind", dto.Kind)
	}
	return stage, nil
}

// resolveRoot returns the directory relative paths resolve against.
func resolveRoot(configPath, configuredRoot string) string {
	configDir := filepath.Dir(configPath)
	if configuredRoot == "" {
		return filepath.Clean(configDir)
	}
	return resolvePath(configDir, configuredRoot)
}

func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(root, path))
}

func resolvePaths(root string, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = resolvePath(root, p)
	}
	return out
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is validated by caller
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "reason", "file does not exist")
		}
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}
	return nil
}
