package config

// Codevfile represents the structure of the codev.yaml configuration file.
type Codevfile struct {
	Version     string         `yaml:"version"`
	Root        string         `yaml:"root"`
	Cache       string         `yaml:"cache"`
	Parallelism int            `yaml:"parallelism"`
	Offline     bool           `yaml:"offline"`
	Manifest    string         `yaml:"manifest"`
	Decompiler  []string       `yaml:"decompiler"`
	Patcher     []string       `yaml:"patcher"`
	Artifacts   []*ArtifactDTO `yaml:"artifacts"`
}

// ArtifactDTO represents an artifact pipeline in the configuration. It
// starts from either a jar path or a game version.
type ArtifactDTO struct {
	Name    string      `yaml:"name"`
	Path    string      `yaml:"path"`
	Version string      `yaml:"version"`
	Side    string      `yaml:"side"`
	Stages  []*StageDTO `yaml:"stages"`
}

// StageDTO represents one pipeline stage. Only the fields of its kind apply.
type StageDTO struct {
	Kind         string   `yaml:"kind"`
	From         string   `yaml:"from"`
	To           string   `yaml:"to"`
	Mappings     []string `yaml:"mappings"`
	GameMappings bool     `yaml:"gameMappings"`
	Classpath    []string `yaml:"classpath"`
	Wideners     []string `yaml:"wideners"`
	Required     bool     `yaml:"required"`
	With         []string `yaml:"with"`
	Strategy     string   `yaml:"strategy"`
	Patches      string   `yaml:"patches"`
}
