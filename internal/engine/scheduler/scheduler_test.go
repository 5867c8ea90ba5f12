package scheduler_test

import (
	"context"
	"crypto/sha1" //nolint:gosec // test fixture
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/codev/internal/adapters/cas"
	"go.trai.ch/codev/internal/adapters/fs"
	"go.trai.ch/codev/internal/adapters/zipfs"
	"go.trai.ch/codev/internal/core/domain"
	"go.trai.ch/codev/internal/core/ports"
	"go.trai.ch/codev/internal/core/ports/mocks"
	"go.trai.ch/codev/internal/engine/bundle"
	"go.trai.ch/codev/internal/engine/classfile"
	"go.trai.ch/codev/internal/engine/mappings"
	"go.trai.ch/codev/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

type harness struct {
	metadata   *mocks.MockMetadataClient
	decompiler *mocks.MockDecompiler
	patcher    *mocks.MockPatcher
	trees      *scheduler.TreeCache
	sched      *scheduler.Scheduler
	cached     atomic.Int32
}

func newHarness(t *testing.T, cacheRoot string) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	h := &harness{
		metadata:   mocks.NewMockMetadataClient(ctrl),
		decompiler: mocks.NewMockDecompiler(ctrl),
		patcher:    mocks.NewMockPatcher(ctrl),
	}

	span := mocks.NewMockSpan(ctrl)
	span.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) { return len(p), nil }).AnyTimes()
	span.EXPECT().End().AnyTimes()
	span.EXPECT().RecordError(gomock.Any()).AnyTimes()
	span.EXPECT().SetAttribute(ports.CachedAttribute, true).Do(func(string, any) { h.cached.Add(1) }).AnyTimes()

	tracer := mocks.NewMockTracer(ctrl)
	tracer.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ ...ports.SpanOption) (context.Context, ports.Span) {
			return ctx, span
		}).AnyTimes()

	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug(gomock.Any()).AnyTimes()

	hasher := fs.NewHasher(fs.NewWalker())
	trees, err := scheduler.NewTreeCache(mappings.NewLoader(logger), hasher, 4)
	require.NoError(t, err)
	h.trees = trees

	h.sched, err = scheduler.NewFactory(logger, tracer, hasher).New(scheduler.Options{
		Cache:        cas.NewStore(cacheRoot, hasher),
		Metadata:     h.metadata,
		Decompiler:   h.decompiler,
		Patcher:      h.patcher,
		Trees:        trees,
		Pool:         scheduler.NewPool(2),
		ArtifactsDir: filepath.Join(cacheRoot, domain.ArtifactsDirName),
	})
	require.NoError(t, err)
	return h
}

func writeJar(t *testing.T, path string, entries map[string]string) []byte {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	a, err := zipfs.Create(path)
	require.NoError(t, err)
	for name, data := range entries {
		require.NoError(t, a.WriteFile(name, []byte(data)))
	}
	require.NoError(t, a.Close())
	data, err := os.ReadFile(path) //nolint:gosec // test fixture
	require.NoError(t, err)
	return data
}

func readJar(t *testing.T, path string) map[string]string {
	t.Helper()
	a, err := zipfs.Open(path)
	require.NoError(t, err)
	defer a.Close() //nolint:errcheck // test cleanup

	out := make(map[string]string)
	for _, p := range a.Paths() {
		data, err := a.ReadFile(p)
		require.NoError(t, err)
		out[p] = string(data)
	}
	return out
}

func writeSources(_ context.Context, _ string, _ []string, output string) error {
	return os.WriteFile(output, []byte("sources"), 0o600)
}

func TestScheduler_ResolveFile_Missing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	h := newHarness(t, filepath.Join(dir, "cache"))

	_, err := h.sched.Resolve(context.Background(), domain.FileDependency{Path: filepath.Join(dir, "missing.jar")})
	require.ErrorContains(t, err, domain.ErrInputNotFound.Error())
}

func TestScheduler_Decompile_ReusedAcrossRuns(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cacheRoot := filepath.Join(dir, "cache")
	in := filepath.Join(dir, "mod.jar")
	require.NoError(t, os.WriteFile(in, []byte("classes"), 0o600))
	dep := domain.DecompiledDependency{Source: domain.FileDependency{Path: in}}

	first := newHarness(t, cacheRoot)
	first.decompiler.EXPECT().Decompile(gomock.Any(), in, gomock.Any(), gomock.Any()).DoAndReturn(writeSources).Times(1)
	path, err := first.sched.Resolve(context.Background(), dep)
	require.NoError(t, err)
	assert.Equal(t, "mod-sources.jar", filepath.Base(path))
	assert.Zero(t, first.cached.Load())

	second := newHarness(t, cacheRoot)
	again, err := second.sched.Resolve(context.Background(), dep)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), second.cached.Load())

	data, err := os.ReadFile(again) //nolint:gosec // test output
	require.NoError(t, err)
	assert.Equal(t, "sources", string(data))
}

func TestScheduler_Resolve_Deduplicates(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "mod.jar")
	require.NoError(t, os.WriteFile(in, []byte("classes"), 0o600))

	h := newHarness(t, filepath.Join(dir, "cache"))
	h.decompiler.EXPECT().Decompile(gomock.Any(), in, gomock.Any(), gomock.Any()).DoAndReturn(writeSources).Times(1)

	deps := make([]domain.Dependency, 8)
	for i := range deps {
		deps[i] = domain.DecompiledDependency{Source: domain.FileDependency{Path: in}}
	}
	paths, err := h.sched.ResolveAll(context.Background(), deps)
	require.NoError(t, err)
	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
}

func TestScheduler_Resolve_StarterCancelled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "mod.jar")
	require.NoError(t, os.WriteFile(in, []byte("classes"), 0o600))
	dep := domain.DecompiledDependency{Source: domain.FileDependency{Path: in}}

	h := newHarness(t, filepath.Join(dir, "cache"))
	started := make(chan struct{})
	release := make(chan struct{})
	h.decompiler.EXPECT().Decompile(gomock.Any(), in, gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, input string, classpath []string, output string) error {
			close(started)
			select {
			case <-release:
				return writeSources(ctx, input, classpath, output)
			case <-ctx.Done():
				return ctx.Err()
			}
		}).Times(1)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.sched.Resolve(ctx, dep)
		firstErr <- err
	}()
	<-started

	type result struct {
		path string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		path, err := h.sched.Resolve(context.Background(), dep)
		second <- result{path, err}
	}()
	// Let the second caller join the running resolution.
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	data, err := os.ReadFile(res.path) //nolint:gosec // test output
	require.NoError(t, err)
	assert.Equal(t, "sources", string(data))
}

func TestNewTreeCache_DefaultSize(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)

	trees, err := scheduler.NewTreeCache(mappings.NewLoader(logger), fs.NewHasher(fs.NewWalker()), 0)
	require.NoError(t, err)
	assert.Zero(t, trees.Len())
}

func TestScheduler_ResolveServer(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cacheRoot := filepath.Join(dir, "cache")

	server := writeJar(t, filepath.Join(dir, "server.jar"), map[string]string{
		domain.ManifestPath:     "Manifest-Version: 1.0\r\nMain-Class: net.minecraft.server.Main\r\n\r\n",
		"META-INF/SERVER.SF":    "signature",
		"net/minecraft/A.class": "server",
	})
	sum := sha1.Sum(server) //nolint:gosec // test fixture
	bundlePath := filepath.Join(dir, "bundle.jar")
	bundleJar := writeJar(t, bundlePath, map[string]string{
		bundle.VersionsList:                      hex.EncodeToString(sum[:]) + "\t1.20\t1.20/server-1.20.jar\n",
		"META-INF/versions/1.20/server-1.20.jar": string(server),
	})

	h := newHarness(t, cacheRoot)
	h.metadata.EXPECT().Version(gomock.Any(), "1.20").Return(&domain.VersionMetadata{
		ID:        "1.20",
		Downloads: map[string]domain.Download{"server": {URL: "https://example.invalid/server.jar", SHA1: "abc"}},
	}, nil)

	var downloaded string
	h.metadata.EXPECT().Download(gomock.Any(), "https://example.invalid/server.jar", "abc", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _, dest string) error {
			downloaded = dest
			require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o750))
			return os.WriteFile(dest, bundleJar, 0o600)
		})

	path, err := h.sched.Resolve(context.Background(), domain.GameDependency{GameVersion: "1.20", Side: domain.SideServer})
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(cacheRoot, domain.ArtifactsDirName, "net", "minecraft", "server", "1.20", "server-1.20.jar"),
		downloaded)

	got := readJar(t, path)
	assert.Equal(t, "server", got["net/minecraft/A.class"])
	assert.NotContains(t, got, "META-INF/SERVER.SF")
	assert.Contains(t, got[domain.ManifestPath], domain.MappingNamespaceAttribute+": "+domain.NamespaceObf)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), "bundled-"+filepath.Base(path)))
}

// bundleOf wraps a server jar in a bundle for version.
func bundleOf(t *testing.T, path, version string, server []byte) []byte {
	t.Helper()
	sum := sha1.Sum(server) //nolint:gosec // test fixture
	entry := version + "/server-" + version + ".jar"
	return writeJar(t, path, map[string]string{
		bundle.VersionsList:          hex.EncodeToString(sum[:]) + "\t" + version + "\t" + entry + "\n",
		"META-INF/versions/" + entry: string(server),
	})
}

// expectGame serves the client and server jars of version from jars.
func (h *harness) expectGame(t *testing.T, version string, jars map[string][]byte) {
	t.Helper()
	h.metadata.EXPECT().Version(gomock.Any(), version).Return(&domain.VersionMetadata{
		ID: version,
		Downloads: map[string]domain.Download{
			"client": {URL: "client", SHA1: "c"},
			"server": {URL: "server", SHA1: "s"},
		},
	}, nil).Times(2)
	h.metadata.EXPECT().Download(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, url, _, dest string) error {
			require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o750))
			return os.WriteFile(dest, jars[url], 0o600)
		}).Times(2)
}

func TestScheduler_ResolveSplitClient(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cacheRoot := filepath.Join(dir, "cache")

	client := writeJar(t, filepath.Join(dir, "client.jar"), map[string]string{
		"a.class":             "shared",
		"client/B.class":      "client",
		"assets/lang/en.json": "{}",
		"data/recipe.json":    "{}",
	})
	server := writeJar(t, filepath.Join(dir, "server.jar"), map[string]string{
		"a.class":             "shared",
		"assets/lang/en.json": "{}",
		"data/recipe.json":    "{}",
	})
	bundled := bundleOf(t, filepath.Join(dir, "bundle.jar"), "1.20", server)

	h := newHarness(t, cacheRoot)
	h.expectGame(t, "1.20", map[string][]byte{"client": client, "server": bundled})

	path, err := h.sched.Resolve(context.Background(), domain.GameDependency{
		GameVersion: "1.20",
		Side:        domain.SideClient,
		Split:       true,
	})
	require.NoError(t, err)

	got := readJar(t, path)
	assert.Equal(t, "client", got["client/B.class"])
	assert.Contains(t, got, "assets/lang/en.json")
	assert.NotContains(t, got, "a.class")
	assert.NotContains(t, got, "data/recipe.json")
	assert.Contains(t, got[domain.ManifestPath], domain.MappingNamespaceAttribute+": "+domain.NamespaceObf)

	common, err := h.sched.Resolve(context.Background(), domain.GameDependency{
		GameVersion: "1.20",
		Side:        domain.SideServer,
		Split:       true,
	})
	require.NoError(t, err)
	serverPath, err := h.sched.Resolve(context.Background(), domain.GameDependency{GameVersion: "1.20", Side: domain.SideServer})
	require.NoError(t, err)
	assert.Equal(t, serverPath, common, "a bundled server is the common part")
}

func legacyClass(t *testing.T, name string, methods ...string) string {
	t.Helper()
	cf := classfile.NewClass(classfile.Version{Major: 52}, classfile.AccPublic|classfile.AccSuper, name, "java/lang/Object")
	for _, m := range methods {
		i := strings.IndexByte(m, '(')
		cf.AddMethod(classfile.AccPublic|classfile.AccAbstract, m[:i], m[i:])
	}
	data, err := cf.Bytes()
	require.NoError(t, err)
	return string(data)
}

func TestScheduler_ResolveSplitLegacy(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cacheRoot := filepath.Join(dir, "cache")

	client := writeJar(t, filepath.Join(dir, "client.jar"), map[string]string{
		"a.class":               legacyClass(t, "a", "tick()V", "render(Lclient/Renderer;)V"),
		"client/Renderer.class": legacyClass(t, "client/Renderer"),
		"assets/icon.png":       "png",
	})
	server := writeJar(t, filepath.Join(dir, "server.jar"), map[string]string{
		"a.class":                         legacyClass(t, "a", "tick()V", "save()V"),
		"net/minecraft/server/Main.class": legacyClass(t, "net/minecraft/server/Main"),
	})
	jars := map[string][]byte{"client": client, "server": server}

	first := newHarness(t, cacheRoot)
	first.expectGame(t, "1.12", jars)

	clientPath, err := first.sched.Resolve(context.Background(), domain.GameDependency{
		GameVersion: "1.12",
		Side:        domain.SideClient,
		Split:       true,
	})
	require.NoError(t, err)
	commonPath, err := first.sched.Resolve(context.Background(), domain.GameDependency{
		GameVersion: "1.12",
		Side:        domain.SideServer,
		Split:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "client-1.12-split.jar", filepath.Base(clientPath))
	assert.Equal(t, "common-1.12.jar", filepath.Base(commonPath))
	assert.Equal(t, filepath.Dir(commonPath), filepath.Dir(clientPath))

	got := readJar(t, clientPath)
	assert.Contains(t, got, "client/Renderer.class")
	assert.Contains(t, got, "assets/icon.png")
	assert.NotContains(t, got, "a.class")

	common := readJar(t, commonPath)
	assert.Contains(t, common, "a.class")
	assert.Contains(t, common, "client/Renderer.class")
	assert.Contains(t, common, "net/minecraft/server/Main.class")
	assert.NotContains(t, common, "assets/icon.png")

	merged, err := classfile.Parse([]byte(common["a.class"]))
	require.NoError(t, err)
	for _, m := range []struct{ name, desc, annotation string }{
		{"tick", "()V", ""},
		{"render", "(Lclient/Renderer;)V", bundle.UnsafeForCommon},
		{"save", "()V", bundle.UnsafeForClient},
	} {
		member := merged.FindMethod(m.name, m.desc)
		require.NotNil(t, member, m.name)
		descs, err := merged.InvisibleAnnotations(member.Attributes)
		require.NoError(t, err)
		if m.annotation == "" {
			assert.Empty(t, descs, m.name)
		} else {
			assert.Equal(t, []string{m.annotation}, descs, m.name)
		}
	}

	second := newHarness(t, cacheRoot)
	second.expectGame(t, "1.12", jars)
	again, err := second.sched.Resolve(context.Background(), domain.GameDependency{
		GameVersion: "1.12",
		Side:        domain.SideClient,
		Split:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, clientPath, again)
	assert.Positive(t, second.cached.Load())
}

func TestScheduler_ResolveSplit_UnknownSide(t *testing.T) {
	t.Parallel()
	h := newHarness(t, t.TempDir())

	_, err := h.sched.Resolve(context.Background(), domain.GameDependency{GameVersion: "1.20", Side: "both", Split: true})
	require.ErrorContains(t, err, domain.ErrSplitUnsupported.Error())
}

func TestScheduler_ResolveGame_MissingDownload(t *testing.T) {
	t.Parallel()
	h := newHarness(t, t.TempDir())
	h.metadata.EXPECT().Version(gomock.Any(), "1.2.5").Return(&domain.VersionMetadata{ID: "1.2.5"}, nil)

	_, err := h.sched.Resolve(context.Background(), domain.GameDependency{GameVersion: "1.2.5", Side: domain.SideServer})
	require.ErrorContains(t, err, domain.ErrMissingDownload.Error())
}

func TestScheduler_ResolveRemapped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := filepath.Join(dir, "game.jar")
	writeJar(t, in, map[string]string{"assets/icon.png": "png"})
	tiny := filepath.Join(dir, "mappings.tiny")
	require.NoError(t, os.WriteFile(tiny, []byte("tiny\t2\t0\tofficial\tnamed\nc\ta\tnet/minecraft/Block\n"), 0o600))

	h := newHarness(t, filepath.Join(dir, "cache"))
	dep := domain.RemappedDependency{
		Source:          domain.FileDependency{Path: in},
		SourceNamespace: domain.NamespaceObf,
		TargetNamespace: domain.NamespaceNamed,
		Mappings:        []domain.Dependency{domain.FileDependency{Path: tiny}},
	}
	path, err := h.sched.Resolve(context.Background(), dep)
	require.NoError(t, err)

	got := readJar(t, path)
	assert.Equal(t, "png", got["assets/icon.png"])
	assert.Contains(t, got[domain.ManifestPath], domain.MappingNamespaceAttribute+": "+domain.NamespaceNamed)
	assert.Equal(t, 1, h.trees.Len())
}

func TestScheduler_ResolvePatched(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cacheRoot := filepath.Join(dir, "cache")

	in := filepath.Join(dir, "game.jar")
	writeJar(t, in, map[string]string{
		"net/A.class":  "clean",
		"assets/x.txt": "x",
	})
	patches := filepath.Join(dir, "joined.lzma")
	require.NoError(t, os.WriteFile(patches, []byte("diff"), 0o600))
	dep := domain.PatchedDependency{Source: domain.FileDependency{Path: in}, Patches: patches}

	first := newHarness(t, cacheRoot)
	first.patcher.EXPECT().Patch(gomock.Any(), in, patches, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, _ []string, output string) error {
			writeJar(t, output, map[string]string{"net/A.class": "patched"})
			return nil
		}).Times(1)

	path, err := first.sched.Resolve(context.Background(), dep)
	require.NoError(t, err)
	assert.Equal(t, "game-patched.jar", filepath.Base(path))
	assert.Equal(t, map[string]string{
		"net/A.class":  "patched",
		"assets/x.txt": "x",
	}, readJar(t, path))
	assert.Empty(t, first.sched.Extras(dep), "the patcher output is not published")

	second := newHarness(t, cacheRoot)
	again, err := second.sched.Resolve(context.Background(), dep)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int32(1), second.cached.Load())
}

func TestScheduler_ResolveStripped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	in := filepath.Join(dir, "mod.jar")
	writeJar(t, in, map[string]string{
		"fabric.mod.json":       `{"id": "mod", "jars": [{"file": "META-INF/jars/lib.jar"}], "mixins": ["mod.mixins.json"]}`,
		"META-INF/jars/lib.jar": "lib",
		"mod.mixins.json":       "{}",
		"net/mod/Mod.class":     "x",
	})

	h := newHarness(t, filepath.Join(dir, "cache"))
	path, err := h.sched.Resolve(context.Background(), domain.StrippedDependency{
		Source:   domain.FileDependency{Path: in},
		Includes: true,
		Mixins:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"fabric.mod.json":   "{\n  \"id\": \"mod\"\n}\n",
		"net/mod/Mod.class": "x",
	}, readJar(t, path))
}

func TestScheduler_ResolveStripped_NestedJars(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cacheRoot := filepath.Join(dir, "cache")

	in := filepath.Join(dir, "mod.jar")
	writeJar(t, in, map[string]string{
		"fabric.mod.json":       `{"id": "mod", "jars": [{"file": "META-INF/jars/lib.jar"}]}`,
		"META-INF/jars/lib.jar": "lib",
	})
	dep := domain.StrippedDependency{Source: domain.FileDependency{Path: in}, Includes: true}

	for range 2 {
		h := newHarness(t, cacheRoot)
		_, err := h.sched.Resolve(context.Background(), dep)
		require.NoError(t, err)

		extras := h.sched.Extras(dep)
		require.Len(t, extras, 1)
		assert.Equal(t, "lib.jar", filepath.Base(extras[0]))
		data, err := os.ReadFile(extras[0]) //nolint:gosec // test output
		require.NoError(t, err)
		assert.Equal(t, "lib", string(data))
	}
}

func TestScheduler_ResolveStripped_RequiredMixins(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "lib.jar")
	writeJar(t, in, map[string]string{"a.class": "x"})

	h := newHarness(t, filepath.Join(dir, "cache"))
	_, err := h.sched.Resolve(context.Background(), domain.StrippedDependency{
		Source:         domain.FileDependency{Path: in},
		Mixins:         true,
		MixinsRequired: true,
	})
	require.ErrorContains(t, err, domain.ErrNoMixinRule.Error())
}

func TestScheduler_ResolveWidened_NoWideners(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "lib.jar")
	entries := map[string]string{"assets/a.txt": "a"}
	writeJar(t, in, entries)

	h := newHarness(t, filepath.Join(dir, "cache"))
	path, err := h.sched.Resolve(context.Background(), domain.WidenedDependency{Source: domain.FileDependency{Path: in}})
	require.NoError(t, err)
	assert.Equal(t, entries, readJar(t, path))
}

func TestScheduler_ResolveIntersection(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "lib.jar")
	entries := map[string]string{"assets/a.txt": "a"}
	writeJar(t, in, entries)

	h := newHarness(t, filepath.Join(dir, "cache"))

	path, err := h.sched.Resolve(context.Background(), domain.IntersectionDependency{
		Members: []domain.Dependency{domain.FileDependency{Path: in}},
	})
	require.NoError(t, err)
	assert.Equal(t, entries, readJar(t, path))

	_, err = h.sched.Resolve(context.Background(), domain.IntersectionDependency{
		Members:  []domain.Dependency{domain.FileDependency{Path: in}},
		Strategy: "loose",
	})
	require.ErrorContains(t, err, domain.ErrUnknownStrategy.Error())
}

type customDependency struct{ domain.FileDependency }

func (customDependency) Key() string { return "custom" }

func TestScheduler_UnknownDependency(t *testing.T) {
	t.Parallel()
	h := newHarness(t, t.TempDir())

	_, err := h.sched.Resolve(context.Background(), customDependency{})
	require.ErrorContains(t, err, domain.ErrUnknownStage.Error())
}

func TestPool_Do_Limits(t *testing.T) {
	t.Parallel()
	pool := scheduler.NewPool(2)
	assert.Equal(t, 2, pool.Size())

	var active, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func(context.Context) error {
				n := active.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				active.Add(-1)
				return nil
			})
		}()
	}
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_Do_Canceled(t *testing.T) {
	t.Parallel()
	pool := scheduler.NewPool(1)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = pool.Do(context.Background(), func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.Do(ctx, func(context.Context) error {
		t.Error("fn must not run")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	close(done)
}
