package evaluator

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/rockcut/gridformula/pkg/types"
)

// number coerces a built-in argument to a number.
func number(fn string, v interface{}) (float64, error) {
	num, ok := toNumber(v)
	if !ok {
		return 0, types.NewError(types.ErrTypeMismatch,
			fmt.Sprintf("%s expects a number, got %s %q", fn, types.TypeName(v), types.Format(v)), -1)
	}
	return num, nil
}

// places reads the optional decimal places argument of the ROUND family.
func places(fn string, args []interface{}) (int32, error) {
	if len(args) < 2 {
		return 0, nil
	}
	p, err := number(fn, args[1])
	if err != nil {
		return 0, err
	}
	if p != math.Trunc(p) || math.Abs(p) > 15 {
		return 0, types.NewError(types.ErrInvalidArgument,
			fmt.Sprintf("%s: decimal places must be an integer between -15 and 15, got %s", fn, types.FormatNumber(p)), -1)
	}
	return int32(p), nil
}

func fnAbs(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	num, err := number("ABS", args[0])
	if err != nil {
		return nil, err
	}
	return math.Abs(num), nil
}

func fnFloor(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	num, err := number("FLOOR", args[0])
	if err != nil {
		return nil, err
	}
	return math.Floor(num), nil
}

func fnCeil(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	num, err := number("CEIL", args[0])
	if err != nil {
		return nil, err
	}
	return math.Ceil(num), nil
}

// roundWith applies a decimal rounding mode. Decimal arithmetic avoids the
// binary representation error of float64 (ROUND(2.675, 2) is 2.68).
func roundWith(fn string, args []interface{}, mode func(decimal.Decimal, int32) decimal.Decimal) (interface{}, error) {
	num, err := number(fn, args[0])
	if err != nil {
		return nil, err
	}
	p, err := places(fn, args)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(num) || math.IsInf(num, 0) {
		return num, nil
	}
	f, _ := mode(decimal.NewFromFloat(num), p).Float64()
	return f, nil
}

func fnRound(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	// Half away from zero, the spreadsheet convention.
	return roundWith("ROUND", args, decimal.Decimal.Round)
}

func fnRoundUp(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return roundWith("ROUNDUP", args, decimal.Decimal.RoundUp)
}

func fnRoundDown(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return roundWith("ROUNDDOWN", args, decimal.Decimal.RoundDown)
}

func fnSqrt(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	num, err := number("SQRT", args[0])
	if err != nil {
		return nil, err
	}
	if num < 0 {
		return nil, types.NewError(types.ErrInvalidArgument,
			fmt.Sprintf("SQRT of negative number %s", types.FormatNumber(num)), -1)
	}
	return math.Sqrt(num), nil
}

func fnPower(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	base, err := number("POWER", args[0])
	if err != nil {
		return nil, err
	}
	exp, err := number("POWER", args[1])
	if err != nil {
		return nil, err
	}
	result := math.Pow(base, exp)
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, types.NewError(types.ErrInvalidArgument,
			fmt.Sprintf("POWER(%s, %s) is not a finite number", types.FormatNumber(base), types.FormatNumber(exp)), -1)
	}
	return result, nil
}

// fnMod returns the remainder with the sign of the divisor.
func fnMod(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	x, err := number("MOD", args[0])
	if err != nil {
		return nil, err
	}
	y, err := number("MOD", args[1])
	if err != nil {
		return nil, err
	}
	if y == 0 {
		return nil, types.NewError(types.ErrDivisionByZero, "MOD by zero", -1)
	}
	return x - y*math.Floor(x/y), nil
}

// numbers coerces the non-blank arguments of an aggregate.
func numbers(fn string, args []interface{}) ([]float64, error) {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		if isBlank(a) {
			continue
		}
		n, err := number(fn, a)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func fnSum(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	nums, err := numbers("SUM", args)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total, nil
}

func fnAvg(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	nums, err := numbers("AVG", args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return types.Undefined, nil
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total / float64(len(nums)), nil
}

func fnMin(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	nums, err := numbers("MIN", args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return types.Undefined, nil
	}
	m := nums[0]
	for _, n := range nums[1:] {
		m = math.Min(m, n)
	}
	return m, nil
}

func fnMax(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	nums, err := numbers("MAX", args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return types.Undefined, nil
	}
	m := nums[0]
	for _, n := range nums[1:] {
		m = math.Max(m, n)
	}
	return m, nil
}
