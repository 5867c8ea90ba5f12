package ports

import (
	"context"

	"go.trai.ch/codev/internal/core/domain"
)

// MetadataClient fetches game version metadata and the artifacts it points at.
//
//go:generate go run go.uber.org/mock/mockgen -source=metadata.go -destination=mocks/mock_metadata.go -package=mocks
type MetadataClient interface {
	// Manifest returns the version manifest.
	Manifest(ctx context.Context) (*domain.VersionManifest, error)

	// Version returns the metadata of one game version.
	Version(ctx context.Context, id string) (*domain.VersionMetadata, error)

	// Download fetches url to dest unless dest already has the expected sha1.
	Download(ctx context.Context, url, sha1, dest string) error
}
