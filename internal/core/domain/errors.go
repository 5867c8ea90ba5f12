package domain

import "go.trai.ch/zerr"

var (
	// ErrArchiveOpenFailed is returned when an archive cannot be opened.
	ErrArchiveOpenFailed = zerr.New("failed to open archive")

	// ErrArchiveCreateFailed is returned when an archive cannot be created.
	ErrArchiveCreateFailed = zerr.New("failed to create archive")

	// ErrArchiveWriteFailed is returned when an archive cannot be written back to disk.
	ErrArchiveWriteFailed = zerr.New("failed to write archive")

	// ErrArchiveClosed is returned when an archive is used after it was closed.
	ErrArchiveClosed = zerr.New("archive is closed")

	// ErrArchiveReadOnly is returned when writing to an archive opened for reading.
	ErrArchiveReadOnly = zerr.New("archive is read-only")

	// ErrEntryNotFound is returned when an archive entry does not exist.
	ErrEntryNotFound = zerr.New("archive entry not found")

	// ErrEntryReadFailed is returned when an archive entry cannot be read.
	ErrEntryReadFailed = zerr.New("failed to read archive entry")

	// ErrFileOpenFailed is returned when a file cannot be opened.
	ErrFileOpenFailed = zerr.New("failed to open file")

	// ErrFileHashFailed is returned when hashing a file fails.
	ErrFileHashFailed = zerr.New("failed to hash file content")

	// ErrPathStatFailed is returned when stating a path fails.
	ErrPathStatFailed = zerr.New("failed to stat path")

	// ErrInputNotFound is returned when an input pattern matches nothing.
	ErrInputNotFound = zerr.New("input not found")

	// ErrWriteHashFailed is returned when writing the hash to the digest fails.
	ErrWriteHashFailed = zerr.New("failed to write hash to digest")

	// ErrCacheCreateFailed is returned when the cache directory cannot be created.
	ErrCacheCreateFailed = zerr.New("failed to create cache directory")

	// ErrCacheIndexReadFailed is returned when the cache index cannot be read.
	ErrCacheIndexReadFailed = zerr.New("failed to read cache index")

	// ErrCacheIndexWriteFailed is returned when the cache index cannot be written.
	ErrCacheIndexWriteFailed = zerr.New("failed to write cache index")

	// ErrCacheLockFailed is returned when the cache lock cannot be acquired.
	ErrCacheLockFailed = zerr.New("failed to acquire cache lock")

	// ErrCachePublishFailed is returned when a produced output cannot be moved into the cache.
	ErrCachePublishFailed = zerr.New("failed to publish cached output")

	// ErrCacheProduceFailed is returned when the cached operation itself fails.
	ErrCacheProduceFailed = zerr.New("cached operation failed")

	// ErrCacheNoOutput is returned when a cached operation completes without writing its output.
	ErrCacheNoOutput = zerr.New("cached operation produced no output")

	// ErrCacheCleanFailed is returned when the cache cannot be deleted.
	ErrCacheCleanFailed = zerr.New("failed to clean cache")

	// ErrTreeCacheCreateFailed is returned when the in-memory mapping tree cache cannot be created.
	ErrTreeCacheCreateFailed = zerr.New("failed to create mapping tree cache")

	// ErrMaterializeFailed is returned when a cached output cannot be placed at its destination.
	ErrMaterializeFailed = zerr.New("failed to materialize cached output")

	// ErrInvalidClassFile is returned when class file bytes cannot be parsed.
	ErrInvalidClassFile = zerr.New("invalid class file")

	// ErrClassEncodeFailed is returned when a class file cannot be encoded.
	ErrClassEncodeFailed = zerr.New("failed to encode class file")

	// ErrConstantPoolOverflow is returned when a constant pool grows past its limit.
	ErrConstantPoolOverflow = zerr.New("constant pool overflow")

	// ErrClassNameMismatch is returned when intersecting classes with different names.
	ErrClassNameMismatch = zerr.New("cannot intersect classes with different names")

	// ErrNoIntersectionInputs is returned when an intersection has no inputs.
	ErrNoIntersectionInputs = zerr.New("no archives to intersect")

	// ErrUnknownStrategy is returned when an intersection strategy is not recognised.
	ErrUnknownStrategy = zerr.New("unknown intersection strategy")

	// ErrInvalidManifest is returned when a manifest cannot be parsed.
	ErrInvalidManifest = zerr.New("invalid manifest")

	// ErrVersionNotInBundle is returned when a bundle has no entry for the requested version.
	ErrVersionNotInBundle = zerr.New("version not found in bundle index")

	// ErrBundleIndexMissing is returned when a server jar has no bundle index.
	ErrBundleIndexMissing = zerr.New("bundle index not found")

	// ErrBundleIndexInvalid is returned when a bundle index row is malformed.
	ErrBundleIndexInvalid = zerr.New("invalid bundle index row")

	// ErrBundleHashMismatch is returned when an embedded jar does not match its listed hash.
	ErrBundleHashMismatch = zerr.New("embedded jar hash mismatch")

	// ErrInvalidCoordinate is returned when a module coordinate cannot be parsed.
	ErrInvalidCoordinate = zerr.New("invalid module coordinate")

	// ErrInvalidMappings is returned when a mapping file cannot be parsed.
	ErrInvalidMappings = zerr.New("invalid mapping file")

	// ErrUnsupportedMappings is returned when no mapping reader accepts a file.
	ErrUnsupportedMappings = zerr.New("unsupported mapping format")

	// ErrNoSharedNamespace is returned when two mapping trees have no namespace in common.
	ErrNoSharedNamespace = zerr.New("mapping trees share no namespace")

	// ErrRemapFailed is returned when remapping a class fails.
	ErrRemapFailed = zerr.New("failed to remap class")

	// ErrInvalidAccessWidener is returned when an access widener cannot be parsed.
	ErrInvalidAccessWidener = zerr.New("invalid access widener")

	// ErrInvalidAccessTransformer is returned when an access transformer cannot be parsed.
	ErrInvalidAccessTransformer = zerr.New("invalid access transformer")

	// ErrNamespaceMismatch is returned when merged access directives declare different namespaces.
	ErrNamespaceMismatch = zerr.New("access modifier namespace mismatch")

	// ErrFieldDescriptorConflict is returned when a field is declared with two descriptors.
	ErrFieldDescriptorConflict = zerr.New("field has conflicting descriptors")

	// ErrInvalidDescriptor is returned when a mod-loader descriptor cannot be parsed.
	ErrInvalidDescriptor = zerr.New("invalid mod descriptor")

	// ErrNoMixinRule is returned when mixin configs must be removed but no rule recognises the archive.
	ErrNoMixinRule = zerr.New(
		"couldn't find mixin configs, unsupported format. " +
			"You can register new mixin loading rules with listing.Registry.Register",
	)

	// ErrMetadataRequestFailed is returned when a metadata request fails.
	ErrMetadataRequestFailed = zerr.New("failed to fetch version metadata")

	// ErrMetadataParseFailed is returned when version metadata cannot be parsed.
	ErrMetadataParseFailed = zerr.New("failed to parse version metadata")

	// ErrMetadataCacheFailed is returned when the metadata cache cannot be used.
	ErrMetadataCacheFailed = zerr.New("failed to access metadata cache")

	// ErrGameVersionNotFound is returned when the version manifest has no such version.
	ErrGameVersionNotFound = zerr.New("game version not found in version manifest")

	// ErrDownloadFailed is returned when an artifact download fails.
	ErrDownloadFailed = zerr.New("failed to download artifact")

	// ErrDownloadHashMismatch is returned when a downloaded artifact does not match its hash.
	ErrDownloadHashMismatch = zerr.New("downloaded artifact hash mismatch")

	// ErrOffline is returned when a network access is needed in offline mode.
	ErrOffline = zerr.New("network access required in offline mode")

	// ErrMissingDownload is returned when version metadata has no download for a side.
	ErrMissingDownload = zerr.New("version has no such download")

	// ErrCommandFailed is returned when an external command exits unsuccessfully.
	ErrCommandFailed = zerr.New("command failed")

	// ErrDecompilerNotConfigured is returned when no decompiler command is configured.
	ErrDecompilerNotConfigured = zerr.New("no decompiler command configured")

	// ErrDecompileFailed is returned when the external decompiler fails.
	ErrDecompileFailed = zerr.New("decompilation failed")

	// ErrPatcherNotConfigured is returned when no patcher command is configured.
	ErrPatcherNotConfigured = zerr.New("no patcher command configured")

	// ErrPatchFailed is returned when the external patcher fails.
	ErrPatchFailed = zerr.New("patching failed")

	// ErrSplitUnsupported is returned when a split is requested on a side that has no split half.
	ErrSplitUnsupported = zerr.New("side cannot be split")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrUnknownStage is returned when a pipeline stage kind is not recognised.
	ErrUnknownStage = zerr.New("unknown pipeline stage")

	// ErrUnknownArtifact is returned when a requested artifact is not configured.
	ErrUnknownArtifact = zerr.New("artifact not found in configuration")

	// ErrArtifactAlreadyExists is returned when two artifacts share a name.
	ErrArtifactAlreadyExists = zerr.New("artifact already exists")

	// ErrCycleDetected is returned when artifacts intersect with each other in a cycle.
	ErrCycleDetected = zerr.New("artifact cycle detected")

	// ErrInvalidArtifact is returned when an artifact definition is incomplete.
	ErrInvalidArtifact = zerr.New("invalid artifact definition")

	// ErrInvalidSide is returned when a side is neither client nor server.
	ErrInvalidSide = zerr.New("invalid side, expected 'client' or 'server'")

	// ErrPipelineFailed is returned when a derived artifact cannot be produced.
	ErrPipelineFailed = zerr.New("pipeline execution failed")
)
