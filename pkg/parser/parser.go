package parser

// Package parser implements the formula tokenizer and parser.
//
// The parser uses a hand-written recursive descent approach based on Pratt's
// "Top Down Operator Precedence" algorithm and reports errors with the byte
// offset of the offending token, so editors can underline them precisely.
//
// # Architecture
//
//   - Lexer: Tokenizes the formula into a stream of tokens (never fails)
//   - Parser: Builds an immutable AST from the tokens
//
// # Example
//
//	expr, err := parser.Parse("=price * qty")
//	if err != nil {
//	    fmt.Printf("Parse error at position %d\n", types.PositionOf(err))
//	    return
//	}
//	ast := expr.AST()
//
// A leading '=' (spreadsheet convention) is optional and stripped before
// tokenizing; positions in errors and nodes stay relative to the full text.

import (
	"github.com/rockcut/gridformula/pkg/types"
)

// DefaultMaxDepth is the nesting limit applied when no WithMaxDepth option is given.
const DefaultMaxDepth = 256

// Parse parses a formula and returns the parsed Expression.
//
// If parsing fails, it returns a *types.Error with a syntax code (S0xxx) and
// the position of the offending token.
func Parse(formula string) (*types.Expression, error) {
	p := NewParser(formula)
	return p.Parse()
}

// Compile is Parse with options.
func Compile(formula string, opts ...CompileOption) (*types.Expression, error) {
	p := NewParser(formula, opts...)
	return p.Parse()
}

// MustParse is like Parse but panics if the formula cannot be parsed.
// It simplifies safe initialization of global variables.
func MustParse(formula string) *types.Expression {
	expr, err := Parse(formula)
	if err != nil {
		panic("parser: Parse(" + formula + "): " + err.Error())
	}
	return expr
}

// StripLeadingEquals removes optional leading whitespace followed by a single
// '=' and returns the remaining text together with its offset in formula.
func StripLeadingEquals(formula string) (string, int) {
	i := 0
	for i < len(formula) && isWhitespace(rune(formula[i])) {
		i++
	}
	if i < len(formula) && formula[i] == '=' && (i+1 >= len(formula) || formula[i+1] != '=') {
		return formula[i+1:], i + 1
	}
	return formula, 0
}

// CompileOption configures compilation behavior.
type CompileOption func(*CompileOptions)

// CompileOptions holds parser configuration.
type CompileOptions struct {
	// MaxDepth limits nesting depth to prevent stack overflow on hostile input.
	MaxDepth int
}

// WithMaxDepth sets the maximum parsing depth.
func WithMaxDepth(depth int) CompileOption {
	return func(opts *CompileOptions) {
		opts.MaxDepth = depth
	}
}
