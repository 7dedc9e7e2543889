package evaluator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rockcut/gridformula/pkg/types"
)

// evalNode evaluates an AST node in the given context.
func (e *Evaluator) evalNode(ctx context.Context, node types.Node, evalCtx *EvalContext) (interface{}, error) {
	if node == nil {
		return nil, fmt.Errorf("invalid expression: nil node")
	}

	// Debug logging
	if e.opts.Debug {
		e.logger.Debug("evaluating node",
			"node", node.String(),
			"position", node.Pos())
	}

	// Dispatch based on node type
	switch n := node.(type) {
	case *types.Number:
		return n.Value, nil
	case *types.String:
		return n.Value, nil
	case *types.Field:
		return evalCtx.Field(n.Name), nil
	case *types.Unary:
		return e.evalUnary(ctx, n, evalCtx)
	case *types.Binary:
		return e.evalBinary(ctx, n, evalCtx)
	case *types.Conditional:
		return e.evalConditional(ctx, n, evalCtx)
	case *types.Call:
		return e.evalFunction(ctx, n, evalCtx)
	default:
		return nil, fmt.Errorf("unsupported node type: %T", node)
	}
}

// evalUnary evaluates prefix negation and logical not.
func (e *Evaluator) evalUnary(ctx context.Context, n *types.Unary, evalCtx *EvalContext) (interface{}, error) {
	v, err := e.evalNode(ctx, n.Operand, evalCtx)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case types.OpNeg:
		num, ok := toNumber(v)
		if !ok {
			return nil, types.TypeMismatch(n.Op, v, n.Position)
		}
		return -num, nil
	case types.OpNot:
		return !truthy(v), nil
	default:
		return nil, fmt.Errorf("unsupported unary operator: %s", n.Op)
	}
}

// evalBinary evaluates both operands, concurrently when either side calls
// a remote function, then applies the operator.
func (e *Evaluator) evalBinary(ctx context.Context, n *types.Binary, evalCtx *EvalContext) (interface{}, error) {
	if n.Op == types.OpAnd || n.Op == types.OpOr {
		return e.evalLogical(ctx, n, evalCtx)
	}

	vals, err := e.evalAll(ctx, evalCtx, n.Left, n.Right)
	if err != nil {
		return nil, err
	}
	return applyOperator(n.Op, vals[0], vals[1], n.Position)
}

// evalLogical evaluates && and ||. Both operands are resolved, but the
// result is the one short-circuit evaluation would give: a left operand
// that decides the outcome masks an error on the right.
func (e *Evaluator) evalLogical(ctx context.Context, n *types.Binary, evalCtx *EvalContext) (interface{}, error) {
	var left, right interface{}
	var lerr, rerr error

	if e.parallel(evalCtx, n.Left, n.Right) {
		// Plain group: a failing side must not cancel the other.
		var g errgroup.Group
		g.Go(func() error {
			left, lerr = e.evalNode(ctx, n.Left, evalCtx)
			return nil
		})
		g.Go(func() error {
			right, rerr = e.evalNode(ctx, n.Right, evalCtx)
			return nil
		})
		_ = g.Wait()
	} else {
		left, lerr = e.evalNode(ctx, n.Left, evalCtx)
		if lerr == nil && decides(n.Op, left) {
			// The right side is local and cannot change the result.
			return truthy(left), nil
		}
		right, rerr = e.evalNode(ctx, n.Right, evalCtx)
	}

	if lerr != nil {
		return nil, lerr
	}
	if decides(n.Op, left) {
		return truthy(left), nil
	}
	if rerr != nil {
		return nil, rerr
	}
	return truthy(right), nil
}

// decides reports whether the left operand alone determines a logical result.
func decides(op string, left interface{}) bool {
	if op == types.OpAnd {
		return !truthy(left)
	}
	return truthy(left)
}

// evalConditional evaluates the condition first and then only the selected
// branch. The other branch is never started.
func (e *Evaluator) evalConditional(ctx context.Context, n *types.Conditional, evalCtx *EvalContext) (interface{}, error) {
	cond, err := e.evalNode(ctx, n.Cond, evalCtx)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return e.evalNode(ctx, n.Then, evalCtx)
	}
	return e.evalNode(ctx, n.Else, evalCtx)
}

// evalAll evaluates nodes and returns their values in order. Nodes whose
// subtree calls a remote function run on their own goroutines; the rest
// are evaluated inline. On failure the error of the leftmost failing node
// is returned.
func (e *Evaluator) evalAll(ctx context.Context, evalCtx *EvalContext, nodes ...types.Node) ([]interface{}, error) {
	vals := make([]interface{}, len(nodes))
	if !e.parallel(evalCtx, nodes...) {
		for i, node := range nodes {
			v, err := e.evalNode(ctx, node, evalCtx)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return vals, nil
	}

	errs := make([]error, len(nodes))
	// A failing local operand cancels the remote siblings already in flight.
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(lctx)
	for i, node := range nodes {
		if !evalCtx.remote[node] {
			continue
		}
		g.Go(func() error {
			vals[i], errs[i] = e.evalNode(gctx, node, evalCtx)
			return errs[i]
		})
	}
	// Local operands run while the remote ones are in flight.
	for i, node := range nodes {
		if evalCtx.remote[node] {
			continue
		}
		vals[i], errs[i] = e.evalNode(gctx, node, evalCtx)
		if errs[i] != nil {
			cancel()
			break
		}
	}
	groupErr := g.Wait()

	for _, err := range errs {
		if err == nil {
			continue
		}
		// Siblings cancelled by the group are not the cause.
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			continue
		}
		return nil, err
	}
	if groupErr != nil {
		return nil, groupErr
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return vals, nil
}

// parallel reports whether evaluating nodes should fan out: concurrency is
// enabled and at least two of them have work to do, one of it remote.
func (e *Evaluator) parallel(evalCtx *EvalContext, nodes ...types.Node) bool {
	if !e.opts.Concurrency || len(nodes) < 2 {
		return false
	}
	for _, n := range nodes {
		if evalCtx.remote[n] {
			return true
		}
	}
	return false
}

// markRemote returns the set of nodes whose subtree contains a call that
// dispatches to a remote function.
func (e *Evaluator) markRemote(root types.Node) map[types.Node]bool {
	if len(e.remote) == 0 {
		return nil
	}
	marks := make(map[types.Node]bool)
	var visit func(n types.Node) bool
	visit = func(n types.Node) bool {
		found := false
		switch x := n.(type) {
		case *types.Call:
			found = e.isRemote(x.Name)
			for _, a := range x.Args {
				if visit(a) {
					found = true
				}
			}
		case *types.Binary:
			l := visit(x.Left)
			r := visit(x.Right)
			found = l || r
		case *types.Unary:
			found = visit(x.Operand)
		case *types.Conditional:
			c := visit(x.Cond)
			t := visit(x.Then)
			f := visit(x.Else)
			found = c || t || f
		}
		if found {
			marks[n] = true
		}
		return found
	}
	visit(root)
	return marks
}
