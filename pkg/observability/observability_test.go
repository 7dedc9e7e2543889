package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracer(t *testing.T) {
	tracer := NewTracer(tracenoop.NewTracerProvider())
	if tracer == nil {
		t.Fatal("NewTracer() should return non-nil tracer")
	}
}

func TestTracerSpans(t *testing.T) {
	tracer := NewNoopTracer()
	ctx := context.Background()

	spans := []func() (context.Context, trace.Span){
		func() (context.Context, trace.Span) { return tracer.StartSpan(ctx, "test") },
		func() (context.Context, trace.Span) { return tracer.StartEval(ctx, "=A+B") },
		func() (context.Context, trace.Span) { return tracer.StartRemoteCall(ctx, "EST_IBU") },
		func() (context.Context, trace.Span) { return tracer.StartBatch(ctx, "b-1", 3) },
		func() (context.Context, trace.Span) { return tracer.StartRows(ctx, "=A", 100) },
	}
	for i, start := range spans {
		c, span := start()
		if c == nil {
			t.Errorf("span %d: nil context", i)
		}
		tracer.RecordError(span, errors.New("boom"))
		tracer.RecordError(span, nil)
		span.End()
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	ctx := context.Background()

	// None of these may panic.
	m.RecordEval(ctx, time.Millisecond)
	m.RecordRemoteCall(ctx, "INVENTORY_ON_HAND", 2*time.Millisecond, false)
	m.RecordRemoteCall(ctx, "INVENTORY_ON_HAND", 2*time.Millisecond, true)
	m.RecordCacheLookup(ctx, "EST_OG", true)
	m.RecordCacheLookup(ctx, "EST_OG", false)
	m.RecordBatchSize(ctx, 4)
	m.RecordError(ctx, "T1003")
}

func TestNewMetricsWithProvider(t *testing.T) {
	if NewMetrics(noopmetric.NewMeterProvider()) == nil {
		t.Fatal("NewMetrics() should return non-nil metrics")
	}
}

func TestLoggerWithTraceWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	got := LoggerWithTrace(context.Background(), logger)
	if got != logger {
		t.Error("expected the same logger when no span is active")
	}
}

func TestLoggerWithTraceWithSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	LoggerWithTrace(ctx, logger).Info("hello")
	out := buf.String()
	if !strings.Contains(out, LogFieldTraceID+"=") || !strings.Contains(out, LogFieldSpanID+"=") {
		t.Errorf("expected trace fields in log line, got %q", out)
	}
}
