package evaluator

import (
	"context"

	"github.com/rockcut/gridformula/pkg/types"
)

// fnIf evaluates its condition and then only the selected branch, like the
// conditional operator. A missing else branch yields false.
func fnIf(ctx context.Context, e *Evaluator, evalCtx *EvalContext, call *types.Call) (interface{}, error) {
	cond, err := e.evalNode(ctx, call.Args[0], evalCtx)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return e.evalNode(ctx, call.Args[1], evalCtx)
	}
	if len(call.Args) < 3 {
		return false, nil
	}
	return e.evalNode(ctx, call.Args[2], evalCtx)
}

func fnAnd(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	for _, a := range args {
		if !truthy(a) {
			return false, nil
		}
	}
	return true, nil
}

func fnOr(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	for _, a := range args {
		if truthy(a) {
			return true, nil
		}
	}
	return false, nil
}

func fnNot(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return !truthy(args[0]), nil
}

// fnCoalesce returns the first non-blank argument.
func fnCoalesce(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	for _, a := range args {
		if !isBlank(a) {
			return a, nil
		}
	}
	return types.Undefined, nil
}

func fnIsBlank(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return isBlank(args[0]), nil
}
