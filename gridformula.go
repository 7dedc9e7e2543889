// Package gridformula evaluates spreadsheet-style formulas for the computed
// columns of a data grid.
//
// A formula is an expression such as
//
//	=IF(qty > 0, price * qty, 0) & " " & unit
//
// evaluated against one row of the grid, with access to the full row set
// and to remote functions supplied by the host application (inventory
// lookups, recipe estimates). Evaluation never fails loudly for data
// problems: the result is a cell state that is either resolved with a
// value or carries an error message.
//
// # Quick Start
//
//	state := gridformula.Evaluate(ctx, `="Lot " & lot_number`, row, rows, nil, nil)
//	fmt.Println(state.Display()) // Lot 42
//
//	// Parse once, evaluate many times
//	expr, err := gridformula.Parse("=qty * price")
//	ev := evaluator.New(evaluator.WithRemoteFunctions(remote), evaluator.WithCache(cache.NewMemory(1024, 0)))
//	states := ev.EvalRows(ctx, expr, rows)
//
// # More Information
//
//   - Parser: github.com/rockcut/gridformula/pkg/parser
//   - Evaluator: github.com/rockcut/gridformula/pkg/evaluator
//   - Static analysis: github.com/rockcut/gridformula/pkg/analysis
//   - Function catalog and validation: github.com/rockcut/gridformula/pkg/catalog
//   - Remote functions over HTTP: github.com/rockcut/gridformula/pkg/remote
package gridformula

import (
	"context"
	"fmt"

	"github.com/rockcut/gridformula/pkg/analysis"
	"github.com/rockcut/gridformula/pkg/cache"
	"github.com/rockcut/gridformula/pkg/catalog"
	"github.com/rockcut/gridformula/pkg/evaluator"
	"github.com/rockcut/gridformula/pkg/functions"
	"github.com/rockcut/gridformula/pkg/parser"
	"github.com/rockcut/gridformula/pkg/types"
)

// Version returns the current version of gridformula.
func Version() string {
	return "v0.3.0"
}

// Parse parses formula text, with or without the leading '='.
func Parse(text string, opts ...parser.CompileOption) (*types.Expression, error) {
	return parser.Compile(text, opts...)
}

// MustParse is like Parse but panics if the text cannot be parsed.
// It simplifies safe initialization of global variables.
func MustParse(text string) *types.Expression {
	expr, err := Parse(text)
	if err != nil {
		panic(fmt.Sprintf("gridformula: Parse(%q): %v", text, err))
	}
	return expr
}

// Evaluate parses text and evaluates it against row. remote and c may be
// nil. Syntax errors resolve to an error state without evaluating.
//
// For repeated evaluations of the same formula, parse once and use an
// evaluator.Evaluator.
func Evaluate(ctx context.Context, text string, row types.Row, allRows []types.Row, remote functions.Remote, c cache.Strategy, opts ...evaluator.EvalOption) types.CellState {
	expr, err := Parse(text)
	if err != nil {
		return types.Failed(err)
	}
	base := []evaluator.EvalOption{evaluator.WithRemoteFunctions(remote)}
	if c != nil {
		base = append(base, evaluator.WithCache(c))
	}
	return evaluator.New(append(base, opts...)...).EvalCell(ctx, expr, row, allRows)
}

// Validate checks text against the default catalog. See catalog.Validate.
func Validate(text string, knownFields []string, remoteNames ...string) catalog.Validation {
	return catalog.Validate(text, catalog.Default(), knownFields, remoteNames...)
}

// Analyze returns the fields a formula reads and the functions it calls.
func Analyze(text string) (fields, funcs analysis.Set, err error) {
	expr, err := Parse(text)
	if err != nil {
		return nil, nil, err
	}
	return analysis.ExtractFields(expr.AST()), analysis.ExtractFunctions(expr.AST()), nil
}
