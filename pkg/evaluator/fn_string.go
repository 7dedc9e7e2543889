package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/rockcut/gridformula/pkg/types"
)

func fnConcat(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(concatString(a))
	}
	return b.String(), nil
}

// fnLen returns the number of characters (not bytes) of the text form.
func fnLen(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return float64(utf8.RuneCountInString(concatString(args[0]))), nil
}

func fnUpper(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return strings.ToUpper(concatString(args[0])), nil
}

func fnLower(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return strings.ToLower(concatString(args[0])), nil
}

func fnTrim(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return strings.TrimSpace(concatString(args[0])), nil
}

// count reads the optional character count of LEFT/RIGHT (default 1).
func count(fn string, args []interface{}) (int, error) {
	if len(args) < 2 {
		return 1, nil
	}
	n, err := number(fn, args[1])
	if err != nil {
		return 0, err
	}
	if n < 0 || n != math.Trunc(n) {
		return 0, types.NewError(types.ErrInvalidArgument,
			fmt.Sprintf("%s: count must be a non-negative integer, got %s", fn, types.FormatNumber(n)), -1)
	}
	return int(n), nil
}

func fnLeft(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	n, err := count("LEFT", args)
	if err != nil {
		return nil, err
	}
	r := []rune(concatString(args[0]))
	if n > len(r) {
		n = len(r)
	}
	return string(r[:n]), nil
}

func fnRight(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	n, err := count("RIGHT", args)
	if err != nil {
		return nil, err
	}
	r := []rune(concatString(args[0]))
	if n > len(r) {
		n = len(r)
	}
	return string(r[len(r)-n:]), nil
}

// fnText renders a value as text; with a second argument numbers are
// rendered with exactly that many decimals.
func fnText(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	if len(args) < 2 {
		return concatString(args[0]), nil
	}
	num, err := number("TEXT", args[0])
	if err != nil {
		return nil, err
	}
	p, err := places("TEXT", args)
	if err != nil {
		return nil, err
	}
	if p < 0 {
		p = 0
	}
	return decimal.NewFromFloat(num).StringFixed(p), nil
}

func fnNumber(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error) {
	return number("NUMBER", args[0])
}
