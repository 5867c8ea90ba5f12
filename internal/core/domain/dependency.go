package domain

import (
	"strings"
)

// Dependency is a requested artifact, either a source artifact or a derived one.
type Dependency interface {
	// Key identifies the dependency together with every transformation parameter.
	Key() string
	// Group is the module group of the underlying artifact.
	Group() string
	// Name is the module name of the underlying artifact.
	Name() string
	// Version is the module version of the underlying artifact.
	Version() string
	// Describe returns a short human-readable form used in logs and spans.
	Describe() string
}

// FileDependency is an artifact that already exists on disk.
type FileDependency struct {
	Path       string
	Coordinate ModuleCoordinate
}

// Key implements Dependency.
func (d FileDependency) Key() string { return "file(" + d.Path + ")" }

// Group implements Dependency.
func (d FileDependency) Group() string { return d.Coordinate.Group }

// Name implements Dependency.
func (d FileDependency) Name() string {
	if d.Coordinate.Name != "" {
		return d.Coordinate.Name
	}
	return baseName(d.Path)
}

// Version implements Dependency.
func (d FileDependency) Version() string { return d.Coordinate.Version }

// Describe implements Dependency.
func (d FileDependency) Describe() string { return d.Path }

// GameGroup is the module group used for game artifacts.
const GameGroup = "net.minecraft"

// GameDependency is the client or server jar of a game version.
// When Split is set a client jar is reduced to its client-only delta and a
// server jar to the part both sides share.
type GameDependency struct {
	GameVersion string
	Side        Side
	Split       bool
}

// Key implements Dependency.
func (d GameDependency) Key() string {
	k := "game(" + d.GameVersion + "," + string(d.Side)
	if d.Split {
		k += ",split"
	}
	return k + ")"
}

// Group implements Dependency.
func (d GameDependency) Group() string { return GameGroup }

// Name implements Dependency.
func (d GameDependency) Name() string { return string(d.Side) }

// Version implements Dependency.
func (d GameDependency) Version() string { return d.GameVersion }

// Describe implements Dependency.
func (d GameDependency) Describe() string {
	return GameGroup + ":" + string(d.Side) + ":" + d.GameVersion
}

// GameMappingsDependency is the obfuscation map published for a side of a game version.
type GameMappingsDependency struct {
	GameVersion string
	Side        Side
}

// Key implements Dependency.
func (d GameMappingsDependency) Key() string {
	return "mappings(" + d.GameVersion + "," + string(d.Side) + ")"
}

// Group implements Dependency.
func (d GameMappingsDependency) Group() string { return GameGroup }

// Name implements Dependency.
func (d GameMappingsDependency) Name() string { return string(d.Side) + "_mappings" }

// Version implements Dependency.
func (d GameMappingsDependency) Version() string { return d.GameVersion }

// Describe implements Dependency.
func (d GameMappingsDependency) Describe() string {
	return GameGroup + ":" + string(d.Side) + ":" + d.GameVersion + " (mappings)"
}

// RemappedDependency is Source remapped between two namespaces.
type RemappedDependency struct {
	Source          Dependency
	SourceNamespace string
	TargetNamespace string
	Mappings        []Dependency
	Classpath       []string
}

// Key implements Dependency.
func (d RemappedDependency) Key() string {
	return "remap(" + d.Source.Key() + "," + d.SourceNamespace + "->" + d.TargetNamespace +
		",[" + joinKeys(d.Mappings) + "],[" + strings.Join(d.Classpath, ";") + "])"
}

// Group implements Dependency.
func (d RemappedDependency) Group() string { return d.Source.Group() }

// Name implements Dependency.
func (d RemappedDependency) Name() string { return d.Source.Name() }

// Version implements Dependency.
func (d RemappedDependency) Version() string { return d.Source.Version() }

// Describe implements Dependency.
func (d RemappedDependency) Describe() string {
	return d.Source.Describe() + " (" + d.SourceNamespace + " -> " + d.TargetNamespace + ")"
}

// WidenedDependency is Source with access wideners applied. Namespace is
// the namespace the wideners must be written in; empty accepts any.
type WidenedDependency struct {
	Source    Dependency
	Namespace string
	Wideners  []string
}

// Key implements Dependency.
func (d WidenedDependency) Key() string {
	return "widen(" + d.Source.Key() + "," + d.Namespace + ",[" + strings.Join(d.Wideners, ";") + "])"
}

// Group implements Dependency.
func (d WidenedDependency) Group() string { return d.Source.Group() }

// Name implements Dependency.
func (d WidenedDependency) Name() string { return d.Source.Name() }

// Version implements Dependency.
func (d WidenedDependency) Version() string { return d.Source.Version() }

// Describe implements Dependency.
func (d WidenedDependency) Describe() string { return d.Source.Describe() + " (widened)" }

// DecompiledDependency is the sources jar of Source.
type DecompiledDependency struct {
	Source    Dependency
	Classpath []string
}

// Key implements Dependency.
func (d DecompiledDependency) Key() string {
	return "decompile(" + d.Source.Key() + ",[" + strings.Join(d.Classpath, ";") + "])"
}

// Group implements Dependency.
func (d DecompiledDependency) Group() string { return d.Source.Group() }

// Name implements Dependency.
func (d DecompiledDependency) Name() string { return d.Source.Name() }

// Version implements Dependency.
func (d DecompiledDependency) Version() string { return d.Source.Version() }

// Describe implements Dependency.
func (d DecompiledDependency) Describe() string { return d.Source.Describe() + " (sources)" }

// PatchedDependency is Source with a binary patch set applied by the
// configured patcher. Entries the patcher drops are carried over from Source.
type PatchedDependency struct {
	Source    Dependency
	Patches   string
	Classpath []string
}

// Key implements Dependency.
func (d PatchedDependency) Key() string {
	return "patch(" + d.Source.Key() + "," + d.Patches + ",[" + strings.Join(d.Classpath, ";") + "])"
}

// Group implements Dependency.
func (d PatchedDependency) Group() string { return d.Source.Group() }

// Name implements Dependency.
func (d PatchedDependency) Name() string { return d.Source.Name() }

// Version implements Dependency.
func (d PatchedDependency) Version() string { return d.Source.Version() }

// Describe implements Dependency.
func (d PatchedDependency) Describe() string { return d.Source.Describe() + " (patched)" }

// StrippedDependency is Source without its jar-in-jar listing and/or mixin
// configs. With MixinsRequired, a jar without recognised mixin configs fails.
type StrippedDependency struct {
	Source         Dependency
	Includes       bool
	Mixins         bool
	MixinsRequired bool
	// Classpath jars are not extracted again when nested in Source.
	Classpath []string
}

// Key implements Dependency.
func (d StrippedDependency) Key() string {
	k := "strip(" + d.Source.Key()
	if d.Includes {
		k += ",includes"
	}
	if d.Mixins {
		k += ",mixins"
	}
	if d.MixinsRequired {
		k += ",required"
	}
	if len(d.Classpath) > 0 {
		k += ",[" + strings.Join(d.Classpath, ";") + "]"
	}
	return k + ")"
}

// Group implements Dependency.
func (d StrippedDependency) Group() string { return d.Source.Group() }

// Name implements Dependency.
func (d StrippedDependency) Name() string { return d.Source.Name() }

// Version implements Dependency.
func (d StrippedDependency) Version() string { return d.Source.Version() }

// Describe implements Dependency.
func (d StrippedDependency) Describe() string { return d.Source.Describe() + " (stripped)" }

// IntersectionDependency is the common subset of several artifacts.
type IntersectionDependency struct {
	Members  []Dependency
	Strategy string
}

// Key implements Dependency.
func (d IntersectionDependency) Key() string {
	return "intersect(" + d.Strategy + ",[" + joinKeys(d.Members) + "])"
}

// Group implements Dependency.
func (d IntersectionDependency) Group() string {
	if len(d.Members) == 0 {
		return ""
	}
	return d.Members[0].Group()
}

// Name implements Dependency.
func (d IntersectionDependency) Name() string {
	if len(d.Members) == 0 {
		return ""
	}
	return d.Members[0].Name()
}

// Version implements Dependency.
func (d IntersectionDependency) Version() string {
	versions := make([]string, len(d.Members))
	for i, m := range d.Members {
		versions[i] = m.Version()
	}
	return strings.Join(versions, "+")
}

// Describe implements Dependency.
func (d IntersectionDependency) Describe() string {
	names := make([]string, len(d.Members))
	for i, m := range d.Members {
		names[i] = m.Describe()
	}
	return "intersection of " + strings.Join(names, ", ")
}

func joinKeys(deps []Dependency) string {
	keys := make([]string, len(deps))
	for i, d := range deps {
		keys[i] = d.Key()
	}
	return strings.Join(keys, ";")
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	return strings.TrimSuffix(path, ".jar")
}
