package evaluator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rockcut/gridformula/pkg/types"
)

// EvalCell evaluates expr against row and settles the result into a cell
// state. It never returns a pending state.
func (e *Evaluator) EvalCell(ctx context.Context, expr *types.Expression, row types.Row, allRows []types.Row) types.CellState {
	return types.StateOf(e.Eval(ctx, expr, row, allRows))
}

// Go starts an evaluation in the background. The returned channel receives
// exactly one settled state and is then closed.
func (e *Evaluator) Go(ctx context.Context, expr *types.Expression, row types.Row, allRows []types.Row) <-chan types.CellState {
	ch := make(chan types.CellState, 1)
	go func() {
		defer close(ch)
		ch <- e.EvalCell(ctx, expr, row, allRows)
	}()
	return ch
}

// EvalRows evaluates expr once per row, with rows as the row set, and
// returns the states in row order. At most RowParallelism rows are in
// flight at once. A failing row does not affect the others.
func (e *Evaluator) EvalRows(ctx context.Context, expr *types.Expression, rows []types.Row) []types.CellState {
	states := make([]types.CellState, len(rows))
	if len(rows) == 0 {
		return states
	}
	if expr == nil || expr.AST() == nil {
		for i := range states {
			states[i] = e.EvalCell(ctx, expr, rows[i], rows)
		}
		return states
	}

	ctx, span := e.tracer.StartRows(ctx, expr.Source(), len(rows))
	defer span.End()

	var g errgroup.Group
	g.SetLimit(e.opts.RowParallelism)
	for i, row := range rows {
		g.Go(func() error {
			states[i] = e.EvalCell(ctx, expr, row, rows)
			return nil
		})
	}
	_ = g.Wait()
	return states
}
