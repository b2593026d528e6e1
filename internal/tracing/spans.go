package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrFormID            = "form.id"
	AttrNamespaceKey      = "namespace.key"
	AttrTargetCount       = "targets.count"
	AttrSubmissionID      = "submission.id"
	AttrSubmissionOutcome = "submission.outcome"
	AttrHTTPMethod        = "http.method"
	AttrHTTPStatus        = "http.status_code"
)

// Span names.
const (
	SpanTrack   = "autosave.track"
	SpanPush    = "autosave.push"
	SpanAppend  = "autosave.append"
	SpanPersist = "autosave.persist"
	SpanUnload  = "autosave.unload"
	SpanSubmit  = "autosave.submit"
)

// Event names.
const (
	EventFieldDeferred = "field.deferred"
	EventCacheWritten  = "cache.written"
)

// Start opens an internal span. A nil tracer yields a non-recording span.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// RecordError marks span as failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
