package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/adapters/cas"
	"go.trai.ch/codev/internal/adapters/fs"
	"go.trai.ch/codev/internal/adapters/metadata"
	"go.trai.ch/codev/internal/adapters/shell"
	"go.trai.ch/codev/internal/adapters/telemetry"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/app"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports/mocks"
	"go.trai.ch/codev/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

type harness struct {
	app    *app.App
	logger *mocks.MockLogger
	loader *mocks.MockConfigLoader
	cfg    *domain.Config
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	dir := t.TempDir()

	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any()).AnyTimes()
	logger.EXPECT().Info(gomock.Any()).AnyTimes()

	loader := mocks.NewMockConfigLoader(ctrl)
	hasher := fs.NewHasher(fs.NewWalker())
	tracer := telemetry.NewNoOpTracer()

	cfg := &domain.Config{
		Root:        dir,
		CacheDir:    filepath.Join(dir, domain.CodevDirName, domain.CacheDirName),
		Parallelism: 2,
		Offline:     true,
	}

	a := app.New(
		loader,
		logger,
		cas.NewOpener(hasher),
		metadata.NewOpener(logger),
		scheduler.NewFactory(logger, tracer, hasher),
		shell.NewExecutor(logger),
		fs.NewResolver(),
		tracer,
	)
	return &harness{app: a, logger: logger, loader: loader, cfg: cfg, dir: dir}
}

func (h *harness) expectConfig() {
	h.loader.EXPECT().Load(gomock.Any(), "").Return(h.cfg, nil).AnyTimes()
}

func writeJar(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	a, err := zipfs.Create(path)
	require.NoError(t, err)
	for name, content := range entries {
		require.NoError(t, a.WriteFile(name, []byte(content)))
	}
	require.NoError(t, a.Close())
}

func createFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestApp_Dependencies(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, name := range []string{"mappings/b.tiny", "mappings/a.tiny", "aw/x.accesswidener", "libs/l1.jar", "patches/client.lzma"} {
		createFile(t, filepath.Join(h.dir, name), "")
	}
	modPath := filepath.Join(h.dir, "mod.jar")

	h.cfg.Artifacts = []domain.Artifact{
		{
			Name:    "client",
			Version: "1.20.1",
			Side:    domain.SideClient,
			Stages: []domain.Stage{
				{Kind: domain.StageSplit},
				{Kind: domain.StagePatch, Patches: "patches/client.lzma"},
				{
					Kind:         domain.StageRemap,
					From:         "official",
					To:           "named",
					Mappings:     []string{"mappings/*.tiny"},
					GameMappings: true,
					Classpath:    []string{"libs/*.jar"},
				},
				{Kind: domain.StageWiden, Wideners: []string{"aw/*.accesswidener"}},
				{Kind: domain.StageDecompile},
			},
		},
		{
			Name: "mod",
			Path: modPath,
			Stages: []domain.Stage{
				{Kind: domain.StageExtractIncludes, Classpath: []string{"libs/*.jar"}},
				{Kind: domain.StageStripMixins, Required: true},
				{Kind: domain.StageIntersect, With: []string{"client"}, Strategy: "cross-version"},
			},
		},
	}

	deps, err := h.app.Dependencies(h.cfg)
	require.NoError(t, err)

	lib := filepath.Join(h.dir, "libs", "l1.jar")
	client := domain.DecompiledDependency{
		Source: domain.WidenedDependency{
			Source: domain.RemappedDependency{
				Source: domain.PatchedDependency{
					Source:  domain.GameDependency{GameVersion: "1.20.1", Side: domain.SideClient, Split: true},
					Patches: filepath.Join(h.dir, "patches", "client.lzma"),
				},
				SourceNamespace: domain.NamespaceObf,
				TargetNamespace: domain.NamespaceNamed,
				Mappings: []domain.Dependency{
					domain.GameMappingsDependency{GameVersion: "1.20.1", Side: domain.SideClient},
					domain.FileDependency{Path: filepath.Join(h.dir, "mappings", "a.tiny")},
					domain.FileDependency{Path: filepath.Join(h.dir, "mappings", "b.tiny")},
				},
				Classpath: []string{lib},
			},
			Namespace: domain.NamespaceNamed,
			Wideners:  []string{filepath.Join(h.dir, "aw", "x.accesswidener")},
		},
	}
	mod := domain.IntersectionDependency{
		Members: []domain.Dependency{
			domain.StrippedDependency{
				Source: domain.StrippedDependency{
					Source:    domain.FileDependency{Path: modPath, Coordinate: domain.ModuleCoordinate{Name: "mod"}},
					Includes:  true,
					Classpath: []string{lib},
				},
				Mixins:         true,
				MixinsRequired: true,
			},
			client,
		},
		Strategy: "cross-version",
	}

	want := map[string]domain.Dependency{"client": client, "mod": mod}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestApp_Dependencies_WidenNamespace(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	createFile(t, filepath.Join(h.dir, "mod.accesswidener"), "")

	h.cfg.Artifacts = []domain.Artifact{{
		Name: "mod",
		Path: filepath.Join(h.dir, "mod.jar"),
		Stages: []domain.Stage{
			{Kind: domain.StageWiden, From: "intermediary", Wideners: []string{"mod.accesswidener"}},
		},
	}}

	deps, err := h.app.Dependencies(h.cfg)
	require.NoError(t, err)

	widened, ok := deps["mod"].(domain.WidenedDependency)
	require.True(t, ok)
	assert.Equal(t, domain.NamespaceIntermediary, widened.Namespace)
}

func TestApp_Dependencies_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		artifact domain.Artifact
		wantErr  error
	}{
		{
			name: "split of a file",
			artifact: domain.Artifact{
				Name:   "mod",
				Path:   "mod.jar",
				Stages: []domain.Stage{{Kind: domain.StageSplit}},
			},
			wantErr: domain.ErrInvalidArtifact,
		},
		{
			name: "split after another stage",
			artifact: domain.Artifact{
				Name:    "client",
				Version: "1.20.1",
				Side:    domain.SideClient,
				Stages:  []domain.Stage{{Kind: domain.StageStripMixins}, {Kind: domain.StageSplit}},
			},
			wantErr: domain.ErrInvalidArtifact,
		},
		{
			name: "game mappings without version",
			artifact: domain.Artifact{
				Name:   "mod",
				Path:   "mod.jar",
				Stages: []domain.Stage{{Kind: domain.StageRemap, From: "obf", To: "named", GameMappings: true}},
			},
			wantErr: domain.ErrInvalidArtifact,
		},
		{
			name: "missing mapping file",
			artifact: domain.Artifact{
				Name:   "mod",
				Path:   "mod.jar",
				Stages: []domain.Stage{{Kind: domain.StageRemap, From: "obf", To: "named", Mappings: []string{"missing.tiny"}}},
			},
			wantErr: domain.ErrInputNotFound,
		},
		{
			name: "missing patches file",
			artifact: domain.Artifact{
				Name:   "mod",
				Path:   "mod.jar",
				Stages: []domain.Stage{{Kind: domain.StagePatch, Patches: "missing.lzma"}},
			},
			wantErr: domain.ErrInputNotFound,
		},
		{
			name: "unknown intersection member",
			artifact: domain.Artifact{
				Name:   "mod",
				Path:   "mod.jar",
				Stages: []domain.Stage{{Kind: domain.StageIntersect, With: []string{"other"}}},
			},
			wantErr: domain.ErrUnknownArtifact,
		},
		{
			name: "unknown stage",
			artifact: domain.Artifact{
				Name:   "mod",
				Path:   "mod.jar",
				Stages: []domain.Stage{{Kind: "shade"}},
			},
			wantErr: domain.ErrUnknownStage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.cfg.Artifacts = []domain.Artifact{tt.artifact}

			_, err := h.app.Dependencies(h.cfg)
			require.ErrorContains(t, err, tt.wantErr.Error())
		})
	}
}

func TestApp_Build(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectConfig()

	writeJar(t, filepath.Join(h.dir, "lib.jar"), map[string]string{
		"net/A.class":      "A",
		"assets/lang.json": "{}",
	})
	h.cfg.Artifacts = []domain.Artifact{{
		Name:   "lib",
		Path:   filepath.Join(h.dir, "lib.jar"),
		Stages: []domain.Stage{{Kind: domain.StageStripMixins}},
	}}

	outDir := filepath.Join(h.dir, "out")
	for range 2 {
		require.NoError(t, h.app.Build(context.Background(), []string{"lib"}, app.BuildOptions{OutputDir: outDir}))
	}

	out, err := zipfs.Open(filepath.Join(outDir, "lib.jar"))
	require.NoError(t, err)
	defer out.Close() //nolint:errcheck // read-only handle
	assert.True(t, out.Has("net/A.class"))
	assert.True(t, out.Has("assets/lang.json"))
}

func TestApp_Build_NestedJars(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectConfig()

	writeJar(t, filepath.Join(h.dir, "mod.jar"), map[string]string{
		"fabric.mod.json":       `{"id": "mod", "jars": [{"file": "META-INF/jars/lib.jar"}]}`,
		"META-INF/jars/lib.jar": "lib",
		"net/mod/Mod.class":     "x",
	})
	h.cfg.Artifacts = []domain.Artifact{{
		Name:   "mod",
		Path:   filepath.Join(h.dir, "mod.jar"),
		Stages: []domain.Stage{{Kind: domain.StageExtractIncludes}},
	}}

	outDir := filepath.Join(h.dir, "out")
	require.NoError(t, h.app.Build(context.Background(), nil, app.BuildOptions{OutputDir: outDir}))

	data, err := os.ReadFile(filepath.Join(outDir, "lib.jar")) //nolint:gosec // test output
	require.NoError(t, err)
	assert.Equal(t, "lib", string(data))

	out, err := zipfs.Open(filepath.Join(outDir, "mod.jar"))
	require.NoError(t, err)
	defer out.Close() //nolint:errcheck // read-only handle
	assert.True(t, out.Has("net/mod/Mod.class"))
	assert.False(t, out.Has("META-INF/jars/lib.jar"))
}

func TestApp_Build_NothingConfigured(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectConfig()
	h.logger.EXPECT().Warn("no artifacts configured")

	require.NoError(t, h.app.Build(context.Background(), nil, app.BuildOptions{}))
}

func TestApp_Build_UnknownArtifact(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectConfig()

	err := h.app.Build(context.Background(), []string{"missing"}, app.BuildOptions{})
	require.ErrorContains(t, err, domain.ErrUnknownArtifact.Error())
}

func TestApp_Build_ConfigLoaderError(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.loader.EXPECT().Load(gomock.Any(), "codev.yaml").Return(nil, errors.New("config load error"))

	err := h.app.WithConfigPath("codev.yaml").Build(context.Background(), nil, app.BuildOptions{})
	require.ErrorContains(t, err, "failed to load configuration")
}

func TestApp_Build_PipelineFailed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectConfig()

	h.cfg.Artifacts = []domain.Artifact{{
		Name:   "lib",
		Path:   filepath.Join(h.dir, "missing.jar"),
		Stages: []domain.Stage{{Kind: domain.StageStripMixins}},
	}}

	err := h.app.Build(context.Background(), nil, app.BuildOptions{})
	require.ErrorContains(t, err, domain.ErrPipelineFailed.Error())
	require.ErrorContains(t, err, domain.ErrInputNotFound.Error())
}

func TestApp_Fetch_Offline(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectConfig()
	h.logger.EXPECT().Warn(gomock.Any()).AnyTimes()

	_, err := h.app.Fetch(context.Background(), app.FetchOptions{Version: "1.20.1", Side: domain.SideClient})
	require.ErrorContains(t, err, domain.ErrOffline.Error())
}

func TestApp_Mixins_Required(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectConfig()

	in := filepath.Join(h.dir, "plain.jar")
	writeJar(t, in, map[string]string{"net/A.class": "A"})

	err := h.app.Mixins(context.Background(), app.MixinsOptions{
		Input:    in,
		Out:      filepath.Join(h.dir, "out.jar"),
		Required: true,
	})
	require.ErrorContains(t, err, domain.ErrNoMixinRule.Error())
	assert.NoFileExists(t, filepath.Join(h.dir, "out.jar"))
}

func TestApp_Intersect_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	err := h.app.Intersect(context.Background(), app.IntersectOptions{Out: "out.jar"})
	require.ErrorContains(t, err, domain.ErrNoIntersectionInputs.Error())

	err = h.app.Intersect(context.Background(), app.IntersectOptions{
		Inputs:   []string{"a.jar", "b.jar"},
		Out:      "out.jar",
		Strategy: "loose",
	})
	require.ErrorContains(t, err, domain.ErrUnknownStrategy.Error())
}

func TestApp_Remap_NoMappings(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	err := h.app.Remap(context.Background(), app.RemapOptions{Input: "in.jar", Out: "out.jar", From: "obf", To: "named"})
	require.ErrorContains(t, err, domain.ErrInvalidArtifact.Error())
}

func TestApp_ExtractServer_Legacy(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	in := filepath.Join(h.dir, "server.jar")
	writeJar(t, in, map[string]string{"net/A.class": "A"})
	out := filepath.Join(h.dir, "out", "server.jar")
	h.logger.EXPECT().Warn(in + " is not a bundle, copied as is")

	require.NoError(t, h.app.ExtractServer(context.Background(), app.ServerOptions{
		Jar:         in,
		Version:     "1.20.1",
		Out:         out,
		AllowLegacy: true,
	}))
	assert.FileExists(t, out)
}

func TestApp_Includes_NoListing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	in := filepath.Join(h.dir, "plain.jar")
	writeJar(t, in, map[string]string{"net/A.class": "A"})

	outputs, err := h.app.Includes(context.Background(), app.IncludesOptions{Input: in, OutDir: filepath.Join(h.dir, "out")})
	require.NoError(t, err)
	assert.Equal(t, []string{in}, outputs)
}

func TestApp_ConvertMappings(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	in := filepath.Join(h.dir, "client.txt")
	createFile(t, in, "com.example.Foo -> a:\n    int count -> b\n")
	out := filepath.Join(h.dir, "out", "client.tiny")

	require.NoError(t, h.app.ConvertMappings(context.Background(), []string{in}, out))

	data, err := os.ReadFile(out) //nolint:gosec // test fixture
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "tiny\t2\t0\t"))
	assert.Contains(t, string(data), "com/example/Foo")
}

func TestApp_ConvertMappings_Unsupported(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	in := filepath.Join(h.dir, "notes.md")
	createFile(t, in, "# not mappings\n")

	err := h.app.ConvertMappings(context.Background(), []string{in}, filepath.Join(h.dir, "out.tiny"))
	require.ErrorContains(t, err, domain.ErrUnsupportedMappings.Error())
}

func TestApp_Clean(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.expectConfig()

	createFile(t, filepath.Join(h.cfg.CacheDir, domain.OperationsDirName, "index.json"), "{}")

	require.NoError(t, h.app.Clean(context.Background()))
	assert.NoDirExists(t, h.cfg.CacheDir)
}
