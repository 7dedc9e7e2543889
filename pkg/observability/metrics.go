package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the formula metric instruments.
type Metrics struct {
	evalDuration   metric.Float64Histogram
	remoteDuration metric.Float64Histogram
	remoteCount    metric.Int64Counter
	cacheLookups   metric.Int64Counter
	batchSize      metric.Int64Histogram
	errorCount     metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Instrument creation only fails on invalid parameters; fall back to
	// bare instruments so partial metrics keep flowing.
	var err error

	m.evalDuration, err = meter.Float64Histogram(
		"formula.eval.duration",
		metric.WithDescription("Duration of formula evaluations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.evalDuration, _ = meter.Float64Histogram("formula.eval.duration")
	}

	m.remoteDuration, err = meter.Float64Histogram(
		"formula.remote.duration",
		metric.WithDescription("Duration of remote function calls in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.remoteDuration, _ = meter.Float64Histogram("formula.remote.duration")
	}

	m.remoteCount, err = meter.Int64Counter(
		"formula.remote.count",
		metric.WithDescription("Total number of remote function dispatches"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.remoteCount, _ = meter.Int64Counter("formula.remote.count")
	}

	m.cacheLookups, err = meter.Int64Counter(
		"formula.cache.lookups",
		metric.WithDescription("Remote result cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		m.cacheLookups, _ = meter.Int64Counter("formula.cache.lookups")
	}

	m.batchSize, err = meter.Int64Histogram(
		"formula.batch.size",
		metric.WithDescription("Number of calls in a remote batch request"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.batchSize, _ = meter.Int64Histogram("formula.batch.size")
	}

	m.errorCount, err = meter.Int64Counter(
		"formula.error.count",
		metric.WithDescription("Total number of formula evaluation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("formula.error.count")
	}

	return m
}

// RecordEval records the duration of a formula evaluation.
func (m *Metrics) RecordEval(ctx context.Context, duration time.Duration) {
	m.evalDuration.Record(ctx, float64(duration.Microseconds())/1000)
}

// RecordRemoteCall records a completed remote dispatch.
func (m *Metrics) RecordRemoteCall(ctx context.Context, name string, duration time.Duration, failed bool) {
	attrs := metric.WithAttributes(
		FunctionNameAttr(name),
		attribute.Bool("error", failed),
	)
	m.remoteDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.remoteCount.Add(ctx, 1, attrs)
}

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, name string, hit bool) {
	result := CacheMiss
	if hit {
		result = CacheHit
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		FunctionNameAttr(name),
		CacheResultAttr(result),
	))
}

// RecordBatchSize records the size of a remote batch request.
func (m *Metrics) RecordBatchSize(ctx context.Context, size int) {
	m.batchSize.Record(ctx, int64(size))
}

// RecordError records an evaluation error by code.
func (m *Metrics) RecordError(ctx context.Context, code string) {
	m.errorCount.Add(ctx, 1, metric.WithAttributes(ErrorCodeAttr(code)))
}
