// Package types defines the core type system for gridformula.
//
// This package contains type definitions for:
//   - Expression: a parsed formula
//   - Node: the closed set of AST node types
//   - Row, Undefined: the data a formula is evaluated against
//   - CellState: the pending/resolved/error lifecycle of one cell
//   - Error: structured errors with codes and source positions
package types

// Expression represents a parsed formula.
//
// An Expression can be evaluated many times against different rows by
// passing it to [evaluator.Evaluator.Eval]. It is safe for concurrent use
// by multiple goroutines.
type Expression struct {
	root   Node
	source string
}

// NewExpression creates a new Expression from an AST root.
func NewExpression(root Node, source string) *Expression {
	return &Expression{
		root:   root,
		source: source,
	}
}

// AST returns the root node of the expression.
func (e *Expression) AST() Node {
	return e.root
}

// Source returns the formula text the expression was parsed from,
// including any leading '='.
func (e *Expression) Source() string {
	return e.source
}

// String returns the original source of the expression.
func (e *Expression) String() string {
	return e.source
}
