package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with formula-specific span creation methods.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartEval starts a span for the evaluation of one formula against one row.
func (t *Tracer) StartEval(ctx context.Context, source string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "formula.eval", trace.WithAttributes(FormulaAttr(source)))
}

// StartRemoteCall starts a span for a remote function dispatch.
func (t *Tracer) StartRemoteCall(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "formula.remote_call", trace.WithAttributes(
		FunctionNameAttr(name),
		FunctionKindAttr(KindRemote),
	))
}

// StartBatch starts a span for an HTTP batch of remote calls.
func (t *Tracer) StartBatch(ctx context.Context, batchID string, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "formula.remote_batch", trace.WithAttributes(
		attribute.String(AttrBatchID, batchID),
		BatchSizeAttr(size),
	), trace.WithSpanKind(trace.SpanKindClient))
}

// StartRows starts a span for a multi-row evaluation.
func (t *Tracer) StartRows(ctx context.Context, source string, rows int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "formula.eval_rows", trace.WithAttributes(
		FormulaAttr(source),
		attribute.Int(AttrRowCount, rows),
	))
}

// RecordError records an error on the span.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// LoggerWithTrace returns a logger enriched with trace context.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return logger
	}
	return logger.With(
		slog.String(LogFieldTraceID, span.SpanContext().TraceID().String()),
		slog.String(LogFieldSpanID, span.SpanContext().SpanID().String()),
	)
}
