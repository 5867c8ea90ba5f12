package ports

import (
	"context"
	"io"
)

//go:generate go run go.uber.org/mock/mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// CachedAttribute marks a span whose work was served from the content cache.
const CachedAttribute = "codev.cached"

// Tracer is the entry point for creating spans.
type Tracer interface {
	// Start creates a new span.
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	// EmitPlan signals that a set of pipeline stages is planned for execution.
	EmitPlan(ctx context.Context, stages []string)
}

// Span represents a unit of work.
type Span interface {
	io.Writer
	// End completes the span.
	End()
	// RecordError records an error for the span.
	RecordError(err error)
	// SetAttribute adds a key-value pair to the span.
	SetAttribute(key string, value any)
}

// SpanConfig holds configuration for a starting span.
type SpanConfig struct {
	// Digest identifies the work of the span, for example a cache key.
	Digest string
}

// SpanOption is a functional option for configuring a span.
type SpanOption func(*SpanConfig)

// WithDigest sets the digest identifying the work of a span.
func WithDigest(digest string) SpanOption {
	return func(c *SpanConfig) {
		c.Digest = digest
	}
}
