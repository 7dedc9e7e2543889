package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rockcut/gridformula/pkg/cache"
	"github.com/rockcut/gridformula/pkg/functions"
	"github.com/rockcut/gridformula/pkg/observability"
	"github.com/rockcut/gridformula/pkg/types"
)

// evalFunction resolves a call. Dispatch order: remote table, built-in,
// unknown function. WithBuiltinPrecedence swaps the first two.
func (e *Evaluator) evalFunction(ctx context.Context, n *types.Call, evalCtx *EvalContext) (interface{}, error) {
	builtin, hasBuiltin := GetFunction(n.Name)
	remote, hasRemote := e.remote.Lookup(n.Name)

	switch {
	case hasRemote && !(hasBuiltin && e.opts.BuiltinPrecedence):
		args, err := e.evalAll(ctx, evalCtx, n.Args...)
		if err != nil {
			return nil, err
		}
		return e.callRemote(ctx, n, remote, args, evalCtx)
	case hasBuiltin:
		return e.callBuiltin(ctx, n, builtin, evalCtx)
	default:
		return nil, types.UnknownFunction(n.Name, n.Position)
	}
}

// isRemote reports whether a call to name dispatches to a remote function.
func (e *Evaluator) isRemote(name string) bool {
	if !e.remote.Has(name) {
		return false
	}
	if e.opts.BuiltinPrecedence {
		_, ok := GetFunction(name)
		return !ok
	}
	return true
}

// callBuiltin checks arity, resolves the arguments and applies fn.
func (e *Evaluator) callBuiltin(ctx context.Context, n *types.Call, fn *FunctionDef, evalCtx *EvalContext) (interface{}, error) {
	// Validate argument count
	if len(n.Args) < fn.MinArgs {
		return nil, types.NewError(types.ErrArgumentCount,
			fmt.Sprintf("%s requires at least %d argument%s, got %d", fn.Name, fn.MinArgs, plural(fn.MinArgs), len(n.Args)), n.Position).WithToken(n.Name)
	}
	if fn.MaxArgs != -1 && len(n.Args) > fn.MaxArgs {
		return nil, types.NewError(types.ErrArgumentCount,
			fmt.Sprintf("%s accepts at most %d argument%s, got %d", fn.Name, fn.MaxArgs, plural(fn.MaxArgs), len(n.Args)), n.Position).WithToken(n.Name)
	}

	var result interface{}
	var err error
	if fn.Special != nil {
		result, err = fn.Special(ctx, e, evalCtx, n)
	} else {
		var args []interface{}
		args, err = e.builtinArgs(ctx, n, fn, evalCtx)
		if err != nil {
			return nil, err
		}
		result, err = fn.Impl(ctx, e, evalCtx, args)
	}
	if err != nil {
		return nil, positioned(err, n)
	}
	return result, nil
}

// builtinArgs evaluates the arguments of a built-in call. For FieldArgs
// functions a bare field reference is passed as its name.
func (e *Evaluator) builtinArgs(ctx context.Context, n *types.Call, fn *FunctionDef, evalCtx *EvalContext) ([]interface{}, error) {
	if !fn.FieldArgs {
		return e.evalAll(ctx, evalCtx, n.Args...)
	}
	args := make([]interface{}, len(n.Args))
	for i, a := range n.Args {
		if f, ok := a.(*types.Field); ok {
			args[i] = f.Name
			continue
		}
		v, err := e.evalNode(ctx, a, evalCtx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// positioned attaches the call position to errors raised by built-ins.
func positioned(err error, n *types.Call) error {
	var fe *types.Error
	if errors.As(err, &fe) {
		if fe.Position >= 0 {
			return err
		}
		cp := *fe
		cp.Position = n.Position
		if cp.Token == "" {
			cp.Token = n.Name
		}
		return &cp
	}
	return types.NewError(types.ErrInvalidArgument, fmt.Sprintf("%s: %v", n.Name, err), n.Position).
		WithToken(n.Name).WithCause(err)
}

// callRemote dispatches a remote call through the cache when one is
// configured. Concurrent misses for the same key and cache generation
// share one dispatch. The shared dispatch does not belong to any caller:
// it runs detached from the caller's cancellation, bounded by the
// evaluator timeout, and each caller only abandons its own wait.
func (e *Evaluator) callRemote(ctx context.Context, n *types.Call, fn functions.RemoteFunc, args []interface{}, evalCtx *EvalContext) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.RemoteFailure(n.Name, err, n.Position)
	}
	if e.cache == nil {
		return e.await(ctx, n, func() (interface{}, error) {
			return e.invokeRemote(ctx, n, fn, args)
		})
	}

	identity := ""
	if e.opts.RowIdentity != nil {
		identity = e.opts.RowIdentity(evalCtx.Row())
	}
	key := CacheKey(n.Name, args, identity)

	// Read before Get: a dispatch is only shared, and its result only
	// stored, within the generation it started in.
	gen, genOK := e.generation(ctx)

	v, ok, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		e.logger.Warn("formula cache get failed", "function", n.Name, "error", err)
	case ok:
		e.metrics.RecordCacheLookup(ctx, n.Name, true)
		if e.opts.Debug {
			e.logger.Debug("formula cache hit", "function", n.Name, "key", key)
		}
		return v, nil
	}
	e.metrics.RecordCacheLookup(ctx, n.Name, false)

	flightKey := key
	if genOK {
		flightKey = key + "#" + strconv.FormatUint(gen, 10)
	}
	ch := e.flight.DoChan(flightKey, func() (interface{}, error) {
		dctx, cancel := e.detach(ctx)
		defer cancel()
		v, err := e.invokeRemote(dctx, n, fn, args)
		if err != nil {
			return nil, err
		}
		e.store(dctx, n.Name, key, v, gen, genOK)
		return v, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, types.RemoteFailure(n.Name, ctx.Err(), n.Position)
	case res = <-ch:
	}
	if res.Shared && e.opts.Debug {
		e.logger.Debug("formula remote call shared", "function", n.Name, "key", key)
	}
	if res.Err != nil {
		return nil, atCall(res.Err, n)
	}
	return res.Val, nil
}

// detach returns a context that keeps the values of ctx (trace spans) but
// not its cancellation, bounded by the evaluator timeout when one is set.
func (e *Evaluator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	dctx := context.WithoutCancel(ctx)
	if e.opts.Timeout > 0 {
		return context.WithTimeout(dctx, e.opts.Timeout)
	}
	return context.WithCancel(dctx)
}

// await runs call on its own goroutine and returns when it finishes or
// when ctx is done, whichever comes first.
func (e *Evaluator) await(ctx context.Context, n *types.Call, call func() (interface{}, error)) (interface{}, error) {
	type outcome struct {
		v   interface{}
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := call()
		done <- outcome{v, err}
	}()
	select {
	case <-ctx.Done():
		return nil, types.RemoteFailure(n.Name, ctx.Err(), n.Position)
	case o := <-done:
		return o.v, o.err
	}
}

// store writes a settled result. Generational strategies only accept it
// while the generation read before dispatch is still current.
func (e *Evaluator) store(ctx context.Context, name, key string, v interface{}, gen uint64, genOK bool) {
	if g, ok := e.cache.(cache.Generational); ok && genOK {
		stored, err := g.SetIfGeneration(ctx, key, v, gen)
		switch {
		case err != nil:
			e.logger.Warn("formula cache set failed", "function", name, "error", err)
		case !stored && e.opts.Debug:
			e.logger.Debug("formula result dropped after invalidation", "function", name, "key", key)
		}
		return
	}
	if err := e.cache.Set(ctx, key, v); err != nil {
		e.logger.Warn("formula cache set failed", "function", name, "error", err)
	}
}

// atCall rewrites the position of a shared failure, which carries the
// position of the caller that started the dispatch.
func atCall(err error, n *types.Call) error {
	var fe *types.Error
	if errors.As(err, &fe) && fe.Position != n.Position {
		cp := *fe
		cp.Position = n.Position
		return &cp
	}
	return err
}

// generation reads the cache generation when the strategy tracks one.
func (e *Evaluator) generation(ctx context.Context) (uint64, bool) {
	g, ok := e.cache.(cache.Generational)
	if !ok {
		return 0, false
	}
	gen, err := g.Generation(ctx)
	if err != nil {
		e.logger.Warn("formula cache generation failed", "error", err)
		return 0, false
	}
	return gen, true
}

// invokeRemote calls fn once, converting failures and panics into
// remote function errors.
func (e *Evaluator) invokeRemote(ctx context.Context, n *types.Call, fn functions.RemoteFunc, args []interface{}) (result interface{}, err error) {
	ctx, span := e.tracer.StartRemoteCall(ctx, n.Name)
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, types.RemoteFailure(n.Name, fmt.Errorf("panic: %v", r), n.Position)
		}
		if err != nil {
			e.tracer.RecordError(span, err)
		}
		e.metrics.RecordRemoteCall(ctx, n.Name, time.Since(start), err != nil)
	}()

	if e.opts.Debug {
		observability.LoggerWithTrace(ctx, e.logger).Debug("formula remote call",
			"function", n.Name,
			"args", len(args))
	}

	v, callErr := fn(ctx, args...)
	if callErr != nil {
		return nil, types.RemoteFailure(n.Name, callErr, n.Position)
	}
	return types.Normalize(v), nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
