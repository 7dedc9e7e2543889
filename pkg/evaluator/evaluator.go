package evaluator

// Package evaluator implements the formula evaluation engine.
//
// The evaluator receives a parsed AST from the parser and evaluates it
// against one row of the grid. It supports:
//   - Field lookup with an explicit undefined value for missing keys
//   - Built-in functions and caller-supplied remote functions
//   - Concurrent resolution of sibling sub-expressions that call remote functions
//   - Result caching for remote calls through a pluggable cache.Strategy
//   - Timeout and cancellation via context.Context
//
// # Example
//
//	ev := evaluator.New(evaluator.WithRemoteFunctions(remote))
//	value, err := ev.Eval(ctx, expr, row, allRows)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Concurrency
//
// Operands and call arguments have no defined evaluation order. Sub-trees
// that contain a remote call are resolved concurrently; purely local work
// stays on the calling goroutine. An Evaluator is safe for concurrent use,
// and EvalRows evaluates one formula over many rows in parallel.

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rockcut/gridformula/pkg/cache"
	"github.com/rockcut/gridformula/pkg/functions"
	"github.com/rockcut/gridformula/pkg/observability"
	"github.com/rockcut/gridformula/pkg/types"
)

// Evaluator evaluates formulas against rows.
type Evaluator struct {
	opts    EvalOptions
	logger  *slog.Logger
	remote  functions.Remote
	cache   cache.Strategy // nil when caching is disabled
	tracer  *observability.Tracer
	metrics *observability.Metrics
	flight  singleflight.Group
}

// EvalOptions configures evaluator behavior.
type EvalOptions struct {
	// RemoteFunctions is the capability table of network-backed functions.
	RemoteFunctions functions.Remote
	// Cache stores remote results. Nil disables caching.
	Cache cache.Strategy
	// RowIdentity returns the part of the cache key that identifies a row.
	// Nil means remote results are shared across rows for equal arguments.
	RowIdentity func(types.Row) string
	// Concurrency enables concurrent resolution of remote sub-expressions.
	Concurrency bool
	// RowParallelism bounds the number of rows EvalRows evaluates at once.
	RowParallelism int
	// Timeout sets evaluation timeout.
	Timeout time.Duration
	// BuiltinPrecedence makes built-ins win over remote functions of the
	// same name. By default the remote function wins.
	BuiltinPrecedence bool
	// Debug enables debug logging.
	Debug bool
	// Logger for structured logging.
	Logger *slog.Logger
	// Tracer wraps remote dispatch in spans.
	Tracer *observability.Tracer
	// Metrics counts remote calls and cache lookups.
	Metrics *observability.Metrics
}

// defaultConcurrency controls the default value of EvalOptions.Concurrency for
// newly created Evaluators. It is false on WebAssembly targets, see
// evaluator_wasm.go.
var defaultConcurrency = true

// New creates a new Evaluator with default options.
func New(opts ...EvalOption) *Evaluator {
	options := EvalOptions{
		Concurrency:    defaultConcurrency,
		RowParallelism: runtime.GOMAXPROCS(0) * 4,
		Timeout:        30 * time.Second,
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Tracer == nil {
		options.Tracer = observability.NewNoopTracer()
	}
	if options.Metrics == nil {
		options.Metrics = observability.NewNoopMetrics()
	}
	if options.RowParallelism <= 0 {
		options.RowParallelism = 1
	}

	// Copy the remote table so later mutation by the caller cannot race
	// with evaluations.
	remote := options.RemoteFunctions.Merge()

	return &Evaluator{
		opts:    options,
		logger:  options.Logger,
		remote:  remote,
		cache:   options.Cache,
		tracer:  options.Tracer,
		metrics: options.Metrics,
	}
}

// Cache returns the result cache, or nil if caching is disabled.
func (e *Evaluator) Cache() cache.Strategy {
	return e.cache
}

// RemoteFunctions returns the names of the registered remote functions.
func (e *Evaluator) RemoteFunctions() []string {
	return e.remote.Names()
}

// Eval evaluates an expression against row. allRows is the full row set
// of the grid; it may be empty and need not contain row.
//
// Data problems (missing remote functions, type mismatches, remote
// failures) are returned as *types.Error values.
func (e *Evaluator) Eval(ctx context.Context, expr *types.Expression, row types.Row, allRows []types.Row) (interface{}, error) {
	if expr == nil || expr.AST() == nil {
		return nil, fmt.Errorf("invalid expression")
	}

	// Apply timeout if configured
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	ctx, span := e.tracer.StartEval(ctx, expr.Source())
	defer span.End()

	evalCtx := NewContext(row, allRows)
	evalCtx.remote = e.markRemote(expr.AST())

	result, err := e.evalNode(ctx, expr.AST(), evalCtx)
	e.metrics.RecordEval(ctx, time.Since(start))
	if err != nil {
		e.tracer.RecordError(span, err)
		e.metrics.RecordError(ctx, string(types.CodeOf(err)))
		if e.opts.Debug {
			observability.LoggerWithTrace(ctx, e.logger).Debug("formula failed",
				"formula", expr.Source(),
				"error", err)
		}
		return nil, err
	}
	return result, nil
}

// EvalOption configures evaluation behavior.
type EvalOption func(*EvalOptions)

// WithRemoteFunctions adds the entries of remote to the remote function table.
func WithRemoteFunctions(remote functions.Remote) EvalOption {
	return func(opts *EvalOptions) {
		opts.RemoteFunctions = opts.RemoteFunctions.Merge(remote)
	}
}

// WithRemoteFunction registers a single remote function.
//
// Example:
//
//	evaluator.New(evaluator.WithRemoteFunction("EST_IBU", func(ctx context.Context, args ...interface{}) (interface{}, error) {
//	    return recipes.EstimateIBU(ctx, args[0])
//	}))
func WithRemoteFunction(name string, fn functions.RemoteFunc) EvalOption {
	return func(opts *EvalOptions) {
		opts.RemoteFunctions = opts.RemoteFunctions.Merge(functions.Remote{name: fn})
	}
}

// WithCache attaches a result cache for remote calls.
func WithCache(c cache.Strategy) EvalOption {
	return func(opts *EvalOptions) {
		opts.Cache = c
	}
}

// WithRowIdentity sets the function deriving the row part of cache keys.
func WithRowIdentity(fn func(types.Row) string) EvalOption {
	return func(opts *EvalOptions) {
		opts.RowIdentity = fn
	}
}

// WithConcurrency enables or disables concurrent evaluation.
func WithConcurrency(enabled bool) EvalOption {
	return func(opts *EvalOptions) {
		opts.Concurrency = enabled
	}
}

// WithRowParallelism bounds the number of rows EvalRows evaluates at once.
func WithRowParallelism(n int) EvalOption {
	return func(opts *EvalOptions) {
		opts.RowParallelism = n
	}
}

// WithTimeout sets the evaluation timeout.
func WithTimeout(timeout time.Duration) EvalOption {
	return func(opts *EvalOptions) {
		opts.Timeout = timeout
	}
}

// WithBuiltinPrecedence makes built-ins shadow remote functions of the same name.
func WithBuiltinPrecedence(enabled bool) EvalOption {
	return func(opts *EvalOptions) {
		opts.BuiltinPrecedence = enabled
	}
}

// WithDebug enables or disables debug logging.
func WithDebug(enabled bool) EvalOption {
	return func(opts *EvalOptions) {
		opts.Debug = enabled
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EvalOption {
	return func(opts *EvalOptions) {
		opts.Logger = logger
	}
}

// WithTracer sets the tracer used for evaluation and remote call spans.
func WithTracer(t *observability.Tracer) EvalOption {
	return func(opts *EvalOptions) {
		opts.Tracer = t
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) EvalOption {
	return func(opts *EvalOptions) {
		opts.Metrics = m
	}
}
