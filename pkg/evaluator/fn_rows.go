package evaluator

import (
	"context"
	"fmt"
	"math"

	"github.com/rockcut/gridformula/pkg/types"
)

// column collects the numeric values of a field across all rows. Blank and
// non-numeric cells are skipped.
func column(fn string, evalCtx *EvalContext, arg interface{}) ([]float64, error) {
	name, ok := arg.(string)
	if !ok || name == "" {
		return nil, types.NewError(types.ErrInvalidArgument,
			fmt.Sprintf("%s expects a field name, got %s", fn, types.TypeName(arg)), -1)
	}
	out := make([]float64, 0, len(evalCtx.AllRows()))
	for _, row := range evalCtx.AllRows() {
		v, ok := row[name]
		if !ok || isBlank(v) {
			continue
		}
		if n, ok := toNumber(v); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func fnColSum(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	vals, err := column("COLSUM", evalCtx, args[0])
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total, nil
}

func fnColAvg(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	vals, err := column("COLAVG", evalCtx, args[0])
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return types.Undefined, nil
	}
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total / float64(len(vals)), nil
}

func fnColMin(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	vals, err := column("COLMIN", evalCtx, args[0])
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return types.Undefined, nil
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Min(m, v)
	}
	return m, nil
}

func fnColMax(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	vals, err := column("COLMAX", evalCtx, args[0])
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return types.Undefined, nil
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Max(m, v)
	}
	return m, nil
}

// fnColCount counts the rows whose field is not blank.
func fnColCount(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	name, ok := args[0].(string)
	if !ok || name == "" {
		return nil, types.NewError(types.ErrInvalidArgument,
			fmt.Sprintf("COLCOUNT expects a field name, got %s", types.TypeName(args[0])), -1)
	}
	n := 0
	for _, row := range evalCtx.AllRows() {
		if v, ok := row[name]; ok && !isBlank(v) {
			n++
		}
	}
	return float64(n), nil
}

func fnRowCount(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return float64(len(evalCtx.AllRows())), nil
}

// fnRowIndex returns the zero-based position of the current row, or -1.
func fnRowIndex(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return float64(evalCtx.Index()), nil
}
