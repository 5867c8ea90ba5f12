package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/codev/internal/core/ports"
)

// ProgrockBridge implements sdktrace.SpanProcessor, recording every span as
// a progrock vertex. Spans started with the same digest share a vertex.
type ProgrockBridge struct {
	w   progrock.Writer
	rec *progrock.Recorder

	mu       sync.Mutex
	vertices map[trace.SpanID]*progrock.VertexRecorder
}

var (
	_ sdktrace.SpanProcessor = (*ProgrockBridge)(nil)
	_ LogSink                = (*ProgrockBridge)(nil)
)

// NewProgrockBridge creates a bridge recording to w.
func NewProgrockBridge(w progrock.Writer) *ProgrockBridge {
	return &ProgrockBridge{
		w:        w,
		rec:      progrock.NewRecorder(w),
		vertices: make(map[trace.SpanID]*progrock.VertexRecorder),
	}
}

// OnStart opens the vertex of s.
func (b *ProgrockBridge) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	sc := s.SpanContext()
	if !sc.IsValid() {
		return
	}

	d := digest.FromString(sc.SpanID().String())
	for _, kv := range s.Attributes() {
		if string(kv.Key) == DigestAttribute {
			d = digest.FromString(kv.Value.AsString())
		}
	}

	v := b.rec.Vertex(d, s.Name())
	b.mu.Lock()
	b.vertices[sc.SpanID()] = v
	b.mu.Unlock()
}

// OnEnd completes the vertex of s, marking cache hits and failures.
func (b *ProgrockBridge) OnEnd(s sdktrace.ReadOnlySpan) {
	id := s.SpanContext().SpanID()
	b.mu.Lock()
	v, ok := b.vertices[id]
	delete(b.vertices, id)
	b.mu.Unlock()
	if !ok {
		return
	}

	for _, kv := range s.Attributes() {
		if string(kv.Key) == ports.CachedAttribute && kv.Value.AsBool() {
			v.Cached()
		}
	}

	var err error
	if s.Status().Code == codes.Error {
		desc := s.Status().Description
		if desc == "" {
			desc = "stage failed"
		}
		err = errors.New(desc)
	}
	v.Done(err)
}

// Log writes data to the output of the vertex of span.
func (b *ProgrockBridge) Log(span trace.SpanID, data []byte) {
	b.mu.Lock()
	v, ok := b.vertices[span]
	b.mu.Unlock()
	if ok {
		_, _ = v.Stdout().Write(data)
	}
}

// ForceFlush does nothing.
func (b *ProgrockBridge) ForceFlush(_ context.Context) error {
	return nil
}

// Shutdown closes the underlying writer.
func (b *ProgrockBridge) Shutdown(_ context.Context) error {
	return b.w.Close()
}
