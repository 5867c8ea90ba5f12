package ports

import (
	"context"

	"go.trai.ch/codev/internal/core/domain"
)

// Producer writes the output of a cached operation to output.
// The output path lives in a private directory that is discarded on failure.
// Any other file the producer writes to that directory is published with the
// output and reported as an extra.
type Producer func(ctx context.Context, output string) error

// Cache runs operations at most once per distinct set of inputs.
//
//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=mocks/mock_cache.go -package=mocks
type Cache interface {
	// Cached returns the published output of op for the given input files,
	// running produce only when no valid entry exists.
	Cached(ctx context.Context, op domain.Operation, inputs []string, produce Producer) (domain.CacheResult, error)

	// Materialize places a cached output at dest.
	Materialize(cached, dest string) error

	// Clean deletes the whole cache.
	Clean() error
}

// CacheOpener opens a Cache rooted at a directory.
type CacheOpener interface {
	Open(root string) Cache
}
