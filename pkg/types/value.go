package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Row is one record of the grid, keyed by field name.
// The engine never mutates a Row.
type Row = map[string]interface{}

// UndefinedType is the type of the Undefined sentinel.
type UndefinedType struct{}

// Undefined is the value of a field that is absent from the row. It is
// distinct from nil, which stands for an explicit null.
var Undefined = UndefinedType{}

// MarshalJSON implements json.Marshaler for UndefinedType.
func (UndefinedType) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String implements fmt.Stringer.
func (UndefinedType) String() string {
	return "undefined"
}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v interface{}) bool {
	_, ok := v.(UndefinedType)
	return ok
}

// Normalize converts the numeric types a row may carry into float64 and
// json.Number into float64 or string. Other values are returned unchanged.
func Normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return string(n)
	default:
		return v
	}
}

// TypeName returns the formula-level type name of a runtime value.
func TypeName(v interface{}) string {
	switch Normalize(v).(type) {
	case nil:
		return "null"
	case UndefinedType:
		return "undefined"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Format renders a value the way a cell displays it.
func Format(v interface{}) string {
	switch x := Normalize(v).(type) {
	case nil:
		return "null"
	case UndefinedType:
		return ""
	case float64:
		return FormatNumber(x)
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		if b, err := json.Marshal(x); err == nil {
			return string(b)
		}
		return fmt.Sprint(x)
	}
}

// FormatNumber renders a float without a trailing ".0" for integral values.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
