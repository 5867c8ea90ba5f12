package domain

import "time"

// Side selects the client or server distribution of a game version.
type Side string

const (
	// SideClient is the client distribution.
	SideClient Side = "client"
	// SideServer is the dedicated server distribution.
	SideServer Side = "server"
)

// ParseSide validates a side name.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideClient, SideServer:
		return Side(s), nil
	default:
		return "", ErrInvalidSide
	}
}

// VersionManifest lists every published game version.
type VersionManifest struct {
	Latest   map[string]string `json:"latest"`
	Versions []VersionInfo     `json:"versions"`
}

// VersionInfo points at the metadata document of one version.
type VersionInfo struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	URL         string    `json:"url"`
	SHA1        string    `json:"sha1,omitempty"`
	Time        time.Time `json:"time"`
	ReleaseTime time.Time `json:"releaseTime"`
}

// Find returns the version with the given id.
func (m *VersionManifest) Find(id string) (VersionInfo, bool) {
	for _, v := range m.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return VersionInfo{}, false
}

// Download describes a downloadable file.
type Download struct {
	Path string `json:"path,omitempty"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// LibraryDownloads groups the downloads of a library.
type LibraryDownloads struct {
	Artifact *Download `json:"artifact,omitempty"`
}

// Library is a runtime dependency of a game version.
type Library struct {
	Name      string           `json:"name"`
	Downloads LibraryDownloads `json:"downloads"`
}

// AssetIndex points at the asset index of a version.
type AssetIndex struct {
	ID        string `json:"id"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize"`
	URL       string `json:"url"`
}

// JavaVersion is the java runtime a version targets.
type JavaVersion struct {
	Component    string `json:"component"`
	MajorVersion int    `json:"majorVersion"`
}

// VersionMetadata is the per-version metadata document.
type VersionMetadata struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	MainClass   string              `json:"mainClass"`
	AssetIndex  AssetIndex          `json:"assetIndex"`
	Downloads   map[string]Download `json:"downloads"`
	Libraries   []Library           `json:"libraries"`
	JavaVersion JavaVersion         `json:"javaVersion"`
	ReleaseTime time.Time           `json:"releaseTime"`
}

// SideDownload returns the jar download for a side.
func (m *VersionMetadata) SideDownload(side Side) (Download, bool) {
	d, ok := m.Downloads[string(side)]
	return d, ok
}

// MappingsDownload returns the obfuscation map download for a side.
func (m *VersionMetadata) MappingsDownload(side Side) (Download, bool) {
	d, ok := m.Downloads[string(side)+"_mappings"]
	return d, ok
}
