package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/codev/internal/core/ports"
)

// DigestAttribute carries the digest a span was started with.
const DigestAttribute = "codev.digest"

// LogSink receives the log output written to a span.
type LogSink interface {
	Log(span trace.SpanID, data []byte)
}

// OTelTracer is a concrete implementation of ports.Tracer using OpenTelemetry.
type OTelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	sink     LogSink
}

var _ ports.Tracer = (*OTelTracer)(nil)

// NewOTelTracer creates a tracer whose own provider feeds processors. Span
// logs go to sink when it is not nil and become span events otherwise.
func NewOTelTracer(name string, sink LogSink, processors ...sdktrace.SpanProcessor) *OTelTracer {
	opts := make([]sdktrace.TracerProviderOption, 0, len(processors))
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	return &OTelTracer{
		provider: provider,
		tracer:   provider.Tracer(name),
		sink:     sink,
	}
}

// Shutdown ends the provider, flushing every processor.
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

// Start creates a new span.
func (t *OTelTracer) Start(ctx context.Context, name string, opts ...ports.SpanOption) (context.Context, ports.Span) {
	cfg := &ports.SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var startOpts []trace.SpanStartOption
	if cfg.Digest != "" {
		startOpts = append(startOpts, trace.WithAttributes(attribute.String(DigestAttribute, cfg.Digest)))
	}
	ctx, span := t.tracer.Start(ctx, name, startOpts...)

	var batcher *BatchProcessor
	if t.sink != nil {
		spanID := span.SpanContext().SpanID()
		batcher = NewBatchProcessor(0, 0, func(data []byte) {
			t.sink.Log(spanID, data)
		})
	}
	return ctx, &OTelSpan{span: span, batcher: batcher}
}

// EmitPlan records the planned stages as an event on the current span.
func (t *OTelTracer) EmitPlan(ctx context.Context, stages []string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("plan_emitted", trace.WithAttributes(
			attribute.StringSlice("stages", stages),
		))
	}
}

// OTelSpan is a concrete implementation of ports.Span using OpenTelemetry.
type OTelSpan struct {
	span    trace.Span
	batcher *BatchProcessor
}

// End flushes the span log and completes the span.
func (s *OTelSpan) End() {
	if s.batcher != nil {
		_ = s.batcher.Close()
	}
	s.span.End()
}

// RecordError records an error for the span.
func (s *OTelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetAttribute adds a key-value pair to the span.
func (s *OTelSpan) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case []string:
		s.span.SetAttributes(attribute.StringSlice(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

// Write satisfies io.Writer by adding to the span log.
func (s *OTelSpan) Write(p []byte) (n int, err error) {
	if s.batcher != nil {
		return s.batcher.Write(p)
	}
	s.span.AddEvent("log", trace.WithAttributes(attribute.String("message", string(p))))
	return len(p), nil
}
