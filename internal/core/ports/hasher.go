package ports

// Hasher computes input fingerprints for the content cache.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// Fingerprint returns a stable fingerprint of a file or directory.
	Fingerprint(path string) (string, error)

	// Digest combines parts into a single key.
	Digest(parts ...string) string
}
