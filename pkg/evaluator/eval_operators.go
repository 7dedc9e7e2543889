package evaluator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rockcut/gridformula/pkg/types"
)

// applyOperator applies a non-logical binary operator to resolved operands.
func applyOperator(op string, left, right interface{}, pos int) (interface{}, error) {
	switch op {
	case types.OpAdd:
		if isText(left) || isText(right) {
			return concatString(left) + concatString(right), nil
		}
		return arithmetic(op, left, right, pos)
	case types.OpSub, types.OpMul, types.OpDiv:
		return arithmetic(op, left, right, pos)
	case types.OpConcat:
		return concatString(left) + concatString(right), nil
	case types.OpEq:
		return equal(left, right), nil
	case types.OpNe:
		return !equal(left, right), nil
	case types.OpLt, types.OpLe, types.OpGt, types.OpGe:
		return compare(op, left, right, pos)
	default:
		return nil, fmt.Errorf("unsupported binary operator: %s", op)
	}
}

// arithmetic applies + - * / after numeric coercion.
func arithmetic(op string, left, right interface{}, pos int) (interface{}, error) {
	l, ok := toNumber(left)
	if !ok {
		return nil, types.TypeMismatch(op, left, pos)
	}
	r, ok := toNumber(right)
	if !ok {
		return nil, types.TypeMismatch(op, right, pos)
	}

	switch op {
	case types.OpAdd:
		return l + r, nil
	case types.OpSub:
		return l - r, nil
	case types.OpMul:
		return l * r, nil
	default:
		if r == 0 {
			return nil, types.NewError(types.ErrDivisionByZero, "division by zero", pos).WithToken(op)
		}
		return l / r, nil
	}
}

// compare applies a relational operator. Two strings compare lexically;
// anything else compares numerically when both sides coerce.
func compare(op string, left, right interface{}, pos int) (interface{}, error) {
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return ordered(op, strings.Compare(ls, rs)), nil
	}

	l, ok := toNumber(left)
	if !ok {
		return nil, types.TypeMismatch(op, left, pos)
	}
	r, ok := toNumber(right)
	if !ok {
		return nil, types.TypeMismatch(op, right, pos)
	}
	switch {
	case l < r:
		return ordered(op, -1), nil
	case l > r:
		return ordered(op, 1), nil
	case l == r:
		return ordered(op, 0), nil
	default:
		// NaN is unordered
		return false, nil
	}
}

func ordered(op string, c int) bool {
	switch op {
	case types.OpLt:
		return c < 0
	case types.OpLe:
		return c <= 0
	case types.OpGt:
		return c > 0
	default:
		return c >= 0
	}
}

// equal implements ==. Values of different kinds are never equal, except
// that null and undefined are both blank.
func equal(left, right interface{}) bool {
	if isNullish(left) || isNullish(right) {
		return isNullish(left) && isNullish(right)
	}
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	default:
		return false
	}
}

// toNumber coerces a formula value to a number. Blank values count as 0,
// booleans as 0/1, and strings only when they parse cleanly.
func toNumber(v interface{}) (float64, bool) {
	switch x := types.Normalize(v).(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case nil, types.UndefinedType:
		return 0, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// truthy reports the boolean meaning of a value: false, blank, 0, NaN and
// the empty string are false.
func truthy(v interface{}) bool {
	switch x := types.Normalize(v).(type) {
	case nil, types.UndefinedType:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

// concatString renders a value for string concatenation. Blank values
// render as the empty string.
func concatString(v interface{}) string {
	if isNullish(v) {
		return ""
	}
	return types.Format(v)
}

// isText reports whether v is a string that is not a clean number.
func isText(v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, isNum := toNumber(s)
	return !isNum
}

func isNullish(v interface{}) bool {
	return v == nil || types.IsUndefined(v)
}

// isBlank reports whether v is null, undefined or the empty string.
func isBlank(v interface{}) bool {
	if isNullish(v) {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
