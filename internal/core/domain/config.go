package domain

// DefaultVersionManifestURL is the version manifest used when none is configured.
const DefaultVersionManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

// Config is the loaded project configuration.
type Config struct {
	// Root is the directory relative paths in the configuration resolve against.
	Root string
	// CacheDir is the content cache root.
	CacheDir string
	// Parallelism bounds the CPU-bound stages running at once.
	Parallelism int
	// Offline forbids network access.
	Offline bool
	// ManifestURL is the version manifest location.
	ManifestURL string
	// Decompiler is the external decompiler command line.
	Decompiler []string
	// Patcher is the external binary patcher command line.
	Patcher []string
	// Artifacts are the configured derived-artifact pipelines, in file order.
	Artifacts []Artifact
}

// Artifact finds a configured artifact by name.
func (c *Config) Artifact(name string) (*Artifact, bool) {
	for i := range c.Artifacts {
		if c.Artifacts[i].Name == name {
			return &c.Artifacts[i], true
		}
	}
	return nil, false
}

// StageKind names a pipeline stage.
type StageKind string

const (
	// StageSplit reduces a client jar to the classes missing from the server.
	StageSplit StageKind = "split"
	// StageRemap remaps between two namespaces.
	StageRemap StageKind = "remap"
	// StageWiden applies access wideners and transformers.
	StageWiden StageKind = "widen"
	// StageStripMixins removes mixin configs.
	StageStripMixins StageKind = "strip-mixins"
	// StageExtractIncludes removes nested jars.
	StageExtractIncludes StageKind = "extract-includes"
	// StageDecompile produces a sources jar.
	StageDecompile StageKind = "decompile"
	// StagePatch applies a binary patch set with the configured patcher.
	StagePatch StageKind = "patch"
	// StageIntersect keeps what the artifact shares with other artifacts.
	StageIntersect StageKind = "intersect"
)

// Stage is one step of an artifact pipeline. Only the fields of its kind are set.
type Stage struct {
	Kind StageKind

	// Remap. GameMappings adds the obfuscation map published for the
	// artifact's game version. Widen reads From as the namespace of its
	// wideners and defaults to the target of the last remap.
	From         string
	To           string
	Mappings     []string
	GameMappings bool

	// Remap, decompile and patch.
	Classpath []string

	// Patch.
	Patches string

	// Widen.
	Wideners []string

	// Strip-mixins: fail when no rule recognises the jar.
	Required bool

	// Intersect.
	With     []string
	Strategy string
}

// Artifact is a named pipeline: a source jar or a game version jar
// followed by stages applied in order.
type Artifact struct {
	Name    string
	Path    string
	Version string
	Side    Side
	Stages  []Stage
}

// References returns the names of the artifacts a intersects with.
func (a *Artifact) References() []string {
	var refs []string
	for _, s := range a.Stages {
		if s.Kind == StageIntersect {
			refs = append(refs, s.With...)
		}
	}
	return refs
}
