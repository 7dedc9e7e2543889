// Package observability provides OpenTelemetry-based instrumentation for
// formula evaluation: spans around evaluations, remote calls and HTTP
// batches, and counters for cache effectiveness.
//
// All instrumentation is opt-in. When not configured, no-op implementations
// are used.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/rockcut/gridformula"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/rockcut/gridformula"
)

// Formula semantic attribute keys.
const (
	AttrFormula      = "formula.source"
	AttrFunctionName = "formula.function.name"
	AttrFunctionKind = "formula.function.kind"
	AttrCacheResult  = "formula.cache.result"
	AttrBatchSize    = "formula.batch.size"
	AttrBatchID      = "formula.batch.id"
	AttrRowCount     = "formula.row.count"
	AttrErrorCode    = "formula.error.code"
)

// Log field names used by LoggerWithTrace.
const (
	LogFieldTraceID = "trace_id"
	LogFieldSpanID  = "span_id"
)

// Function kinds.
const (
	KindRemote  = "remote"
	KindBuiltin = "builtin"
)

// Cache results.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// FormulaAttr returns the formula source attribute.
func FormulaAttr(source string) attribute.KeyValue {
	return attribute.String(AttrFormula, source)
}

// FunctionNameAttr returns the function name attribute.
func FunctionNameAttr(name string) attribute.KeyValue {
	return attribute.String(AttrFunctionName, name)
}

// FunctionKindAttr returns the function kind attribute.
func FunctionKindAttr(kind string) attribute.KeyValue {
	return attribute.String(AttrFunctionKind, kind)
}

// CacheResultAttr returns the cache result attribute.
func CacheResultAttr(result string) attribute.KeyValue {
	return attribute.String(AttrCacheResult, result)
}

// BatchSizeAttr returns the batch size attribute.
func BatchSizeAttr(size int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, size)
}

// ErrorCodeAttr returns the error code attribute.
func ErrorCodeAttr(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}
