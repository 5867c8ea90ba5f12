package domain

import "path/filepath"

const (
	// CodevDirName is the name of the internal workspace directory.
	CodevDirName = ".codev"

	// CacheDirName is the name of the cache directory.
	CacheDirName = "cache"

	// OperationsDirName is the directory holding cached operation outputs.
	OperationsDirName = "cached-operations"

	// MetadataDirName is the directory holding cached version metadata.
	MetadataDirName = "metadata"

	// ArtifactsDirName is the directory holding downloaded artifacts.
	ArtifactsDirName = "artifacts"

	// IndexFileName is the name of the content cache index file.
	IndexFileName = "index.json"

	// LockFileSuffix is appended to a cache key to form its lock file name.
	LockFileSuffix = ".lock"

	// ConfigFileName is the name of the project configuration file.
	ConfigFileName = "codev.yaml"

	// ManifestPath is the location of the jar manifest inside an archive.
	ManifestPath = "META-INF/MANIFEST.MF"

	// MappingNamespaceAttribute is the manifest attribute naming the namespace a jar is mapped in.
	MappingNamespaceAttribute = "Codev-Mapping-Namespace"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// DefaultCodevPath returns the default root directory for codev metadata.
func DefaultCodevPath() string {
	return CodevDirName
}

// DefaultCachePath returns the default cache root.
// It joins .codev and cache.
func DefaultCachePath() string {
	return filepath.Join(CodevDirName, CacheDirName)
}

// OperationsPath returns the directory holding cached operation outputs under root.
func OperationsPath(root string) string {
	return filepath.Join(root, OperationsDirName)
}

// MetadataPath returns the directory holding cached version metadata under root.
func MetadataPath(root string) string {
	return filepath.Join(root, MetadataDirName)
}

// ArtifactsPath returns the directory holding downloaded artifacts under root.
func ArtifactsPath(root string) string {
	return filepath.Join(root, ArtifactsDirName)
}
