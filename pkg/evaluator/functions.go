package evaluator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rockcut/gridformula/pkg/types"
)

// FunctionDef defines a built-in function.
type FunctionDef struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for unlimited
	// FieldArgs passes arguments that are bare field references by name
	// instead of by value (COLSUM(qty) sums the qty column).
	FieldArgs bool
	// Lazy functions receive unevaluated arguments through Special.
	Special SpecialImpl
	Impl    FunctionImpl
}

// FunctionImpl is the implementation of a function.
type FunctionImpl func(ctx context.Context, e *Evaluator, evalCtx *EvalContext, args []interface{}) (interface{}, error)

// SpecialImpl implements a function that controls the evaluation of its
// own arguments.
type SpecialImpl func(ctx context.Context, e *Evaluator, evalCtx *EvalContext, call *types.Call) (interface{}, error)

var (
	builtinFunctions     map[string]*FunctionDef
	builtinFunctionsOnce sync.Once
)

// initBuiltinFunctions initializes the built-in function registry.
func initBuiltinFunctions() {
	builtinFunctionsOnce.Do(func() {
		builtinFunctions = map[string]*FunctionDef{
			// Math functions
			"ABS":       {Name: "ABS", MinArgs: 1, MaxArgs: 1, Impl: fnAbs},
			"ROUND":     {Name: "ROUND", MinArgs: 1, MaxArgs: 2, Impl: fnRound},
			"ROUNDUP":   {Name: "ROUNDUP", MinArgs: 1, MaxArgs: 2, Impl: fnRoundUp},
			"ROUNDDOWN": {Name: "ROUNDDOWN", MinArgs: 1, MaxArgs: 2, Impl: fnRoundDown},
			"FLOOR":     {Name: "FLOOR", MinArgs: 1, MaxArgs: 1, Impl: fnFloor},
			"CEIL":      {Name: "CEIL", MinArgs: 1, MaxArgs: 1, Impl: fnCeil},
			"SQRT":      {Name: "SQRT", MinArgs: 1, MaxArgs: 1, Impl: fnSqrt},
			"POWER":     {Name: "POWER", MinArgs: 2, MaxArgs: 2, Impl: fnPower},
			"MOD":       {Name: "MOD", MinArgs: 2, MaxArgs: 2, Impl: fnMod},

			// Aggregation functions
			"MIN": {Name: "MIN", MinArgs: 1, MaxArgs: -1, Impl: fnMin},
			"MAX": {Name: "MAX", MinArgs: 1, MaxArgs: -1, Impl: fnMax},
			"SUM": {Name: "SUM", MinArgs: 1, MaxArgs: -1, Impl: fnSum},
			"AVG": {Name: "AVG", MinArgs: 1, MaxArgs: -1, Impl: fnAvg},

			// Logical functions
			"IF":       {Name: "IF", MinArgs: 2, MaxArgs: 3, Special: fnIf},
			"AND":      {Name: "AND", MinArgs: 1, MaxArgs: -1, Impl: fnAnd},
			"OR":       {Name: "OR", MinArgs: 1, MaxArgs: -1, Impl: fnOr},
			"NOT":      {Name: "NOT", MinArgs: 1, MaxArgs: 1, Impl: fnNot},
			"COALESCE": {Name: "COALESCE", MinArgs: 1, MaxArgs: -1, Impl: fnCoalesce},
			"ISBLANK":  {Name: "ISBLANK", MinArgs: 1, MaxArgs: 1, Impl: fnIsBlank},

			// String functions
			"CONCAT": {Name: "CONCAT", MinArgs: 0, MaxArgs: -1, Impl: fnConcat},
			"LEN":    {Name: "LEN", MinArgs: 1, MaxArgs: 1, Impl: fnLen},
			"UPPER":  {Name: "UPPER", MinArgs: 1, MaxArgs: 1, Impl: fnUpper},
			"LOWER":  {Name: "LOWER", MinArgs: 1, MaxArgs: 1, Impl: fnLower},
			"TRIM":   {Name: "TRIM", MinArgs: 1, MaxArgs: 1, Impl: fnTrim},
			"LEFT":   {Name: "LEFT", MinArgs: 1, MaxArgs: 2, Impl: fnLeft},
			"RIGHT":  {Name: "RIGHT", MinArgs: 1, MaxArgs: 2, Impl: fnRight},
			"TEXT":   {Name: "TEXT", MinArgs: 1, MaxArgs: 2, Impl: fnText},
			"NUMBER": {Name: "NUMBER", MinArgs: 1, MaxArgs: 1, Impl: fnNumber},

			// Row-set functions
			"COLSUM":   {Name: "COLSUM", MinArgs: 1, MaxArgs: 1, FieldArgs: true, Impl: fnColSum},
			"COLAVG":   {Name: "COLAVG", MinArgs: 1, MaxArgs: 1, FieldArgs: true, Impl: fnColAvg},
			"COLMIN":   {Name: "COLMIN", MinArgs: 1, MaxArgs: 1, FieldArgs: true, Impl: fnColMin},
			"COLMAX":   {Name: "COLMAX", MinArgs: 1, MaxArgs: 1, FieldArgs: true, Impl: fnColMax},
			"COLCOUNT": {Name: "COLCOUNT", MinArgs: 1, MaxArgs: 1, FieldArgs: true, Impl: fnColCount},
			"ROWCOUNT": {Name: "ROWCOUNT", MinArgs: 0, MaxArgs: 0, Impl: fnRowCount},
			"ROWINDEX": {Name: "ROWINDEX", MinArgs: 0, MaxArgs: 0, Impl: fnRowIndex},
		}
	})
}

// GetFunction retrieves a built-in function by name. Built-in names are
// case-insensitive.
func GetFunction(name string) (*FunctionDef, bool) {
	initBuiltinFunctions()
	fn, ok := builtinFunctions[strings.ToUpper(name)]
	return fn, ok
}

// BuiltinNames returns the names of all built-in functions in sorted order.
func BuiltinNames() []string {
	initBuiltinFunctions()
	names := make([]string, 0, len(builtinFunctions))
	for name := range builtinFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
