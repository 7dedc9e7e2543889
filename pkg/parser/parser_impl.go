package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rockcut/gridformula/pkg/types"
)

// Parser implements a recursive descent parser for formulas.
// It uses Pratt's "Top Down Operator Precedence" algorithm to handle
// operator precedence correctly.
type Parser struct {
	lexer   *Lexer
	source  string
	current Token
	prev    Token
	depth   int
	opts    CompileOptions
}

// NewParser creates a new parser for the given formula.
func NewParser(input string, opts ...CompileOption) *Parser {
	options := CompileOptions{
		MaxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&options)
	}

	lexer := NewLexer(input)
	_, offset := StripLeadingEquals(input)
	lexer.start, lexer.current = offset, offset

	p := &Parser{
		lexer:  lexer,
		source: input,
		opts:   options,
	}

	// Read the first token
	p.advance()

	return p
}

// Parse parses the entire formula and returns the Expression.
func (p *Parser) Parse() (*types.Expression, error) {
	if p.current.Type == TokenEOF {
		return nil, p.error(types.ErrEmptyFormula, "empty formula")
	}

	node, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}

	if p.current.Type != TokenEOF {
		if p.current.Type == TokenParenClose {
			return nil, p.error(types.ErrUnbalancedParens, "unmatched ')'")
		}
		return nil, p.unexpected()
	}

	return types.NewExpression(node, p.source), nil
}

// Binding powers, lowest to highest. Higher values bind more tightly.
const (
	precConditional    = 10
	precOr             = 20
	precAnd            = 30
	precEquality       = 40
	precRelational     = 50
	precAdditive       = 60
	precMultiplicative = 70
	precUnary          = 80
)

// Operator precedence table (binding power)
var precedence = map[TokenType]int{
	TokenCondition:    precConditional,
	TokenOr:           precOr,
	TokenAnd:          precAnd,
	TokenEqual:        precEquality,
	TokenNotEqual:     precEquality,
	TokenLess:         precRelational,
	TokenLessEqual:    precRelational,
	TokenGreater:      precRelational,
	TokenGreaterEqual: precRelational,
	TokenPlus:         precAdditive,
	TokenMinus:        precAdditive,
	TokenConcat:       precAdditive,
	TokenMult:         precMultiplicative,
	TokenDiv:          precMultiplicative,
}

// getPrecedence returns the precedence of a token type.
func (p *Parser) getPrecedence(tt TokenType) int {
	if prec, ok := precedence[tt]; ok {
		return prec
	}
	return 0
}

// advance moves to the next token.
func (p *Parser) advance() {
	p.prev = p.current
	p.current = p.lexer.Next()
}

// expect checks if the current token matches the expected type and advances.
func (p *Parser) expect(tt TokenType) error {
	if p.current.Type != tt {
		if err := p.lexError(); err != nil {
			return err
		}
		if p.current.Type == TokenEOF {
			return p.error(types.ErrUnexpectedEnd, fmt.Sprintf("expected %s but reached end of formula", tt.String()))
		}
		return p.error(types.ErrExpectedToken, fmt.Sprintf("expected %s but got %s", tt.String(), describe(p.current)))
	}
	p.advance()
	return nil
}

// error creates a parser error at the current token.
func (p *Parser) error(code types.ErrorCode, message string) error {
	return p.errorAt(code, message, p.current)
}

func (p *Parser) errorAt(code types.ErrorCode, message string, t Token) error {
	return &types.Error{
		Code:     code,
		Message:  message,
		Position: t.Position,
		Token:    t.Value,
	}
}

// lexError returns the lexer's error when the current token is an error token.
func (p *Parser) lexError() error {
	if p.current.Type == TokenError {
		if err := p.lexer.Err(); err != nil {
			return err
		}
		return p.error(types.ErrInvalidCharacter, fmt.Sprintf("invalid input %q", p.current.Value))
	}
	return nil
}

// unexpected reports the current token as out of place.
func (p *Parser) unexpected() error {
	if err := p.lexError(); err != nil {
		return err
	}
	if p.current.Type == TokenEOF {
		return p.error(types.ErrUnexpectedEnd, "unexpected end of formula")
	}
	return p.error(types.ErrUnexpectedToken, fmt.Sprintf("unexpected %s", describe(p.current)))
}

// parseExpression parses an expression with operator precedence.
// rbp is the right binding power (minimum precedence).
func (p *Parser) parseExpression(rbp int) (types.Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.opts.MaxDepth > 0 && p.depth > p.opts.MaxDepth {
		return nil, p.error(types.ErrMaxDepthExceeded, fmt.Sprintf("formula nesting exceeds %d levels", p.opts.MaxDepth))
	}

	// Parse prefix expression (nud - null denotation)
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	// Parse infix expressions while precedence allows (led - left denotation)
	for rbp < p.getPrecedence(p.current.Type) {
		left, err = p.parseInfix(left)
		if err != nil {
			return nil, err
		}
	}

	if p.current.Type == TokenError {
		return nil, p.lexError()
	}

	return left, nil
}

// parsePrefix parses a prefix expression (nud - null denotation).
func (p *Parser) parsePrefix() (types.Node, error) {
	switch p.current.Type {
	case TokenString:
		return p.parseString()
	case TokenNumber:
		return p.parseNumber()
	case TokenName:
		return p.parseName()
	case TokenMinus, TokenNot:
		return p.parseUnary()
	case TokenPlus:
		// Unary plus is accepted and dropped.
		p.advance()
		return p.parseExpression(precUnary)
	case TokenParenOpen:
		return p.parseGrouping()
	default:
		return nil, p.unexpected()
	}
}

// parseInfix parses an infix expression (led - left denotation).
func (p *Parser) parseInfix(left types.Node) (types.Node, error) {
	switch p.current.Type {
	case TokenCondition:
		return p.parseConditional(left)
	case TokenPlus, TokenMinus, TokenMult, TokenDiv, TokenConcat,
		TokenEqual, TokenNotEqual, TokenLess, TokenLessEqual,
		TokenGreater, TokenGreaterEqual, TokenAnd, TokenOr:
		return p.parseBinaryOp(left)
	default:
		return nil, p.unexpected()
	}
}

// unescapeString processes backslash escape sequences in a string literal.
func unescapeString(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("dangling escape")
		}
		switch s[i] {
		case '"', '\'', '\\', '/':
			b.WriteByte(s[i])
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", fmt.Errorf("unsupported escape sequence \\%c", s[i])
		}
	}
	return b.String(), nil
}

// parseString parses a string literal.
func (p *Parser) parseString() (types.Node, error) {
	unescaped, err := unescapeString(p.current.Value)
	if err != nil {
		return nil, p.error(types.ErrUnsupportedEscape, fmt.Sprintf("invalid string literal: %v", err))
	}

	node := &types.String{Value: unescaped, Position: p.current.Position}
	p.advance()
	return node, nil
}

// parseNumber parses a number literal.
func (p *Parser) parseNumber() (types.Node, error) {
	val, err := strconv.ParseFloat(p.current.Value, 64)
	if err != nil {
		return nil, p.error(types.ErrInvalidNumber, fmt.Sprintf("invalid number: %s", p.current.Value))
	}

	node := &types.Number{Value: val, Position: p.current.Position}
	p.advance()
	return node, nil
}

// parseName parses a field reference, or a function call when the name is
// immediately followed by '('.
func (p *Parser) parseName() (types.Node, error) {
	name := p.current
	p.advance()

	if p.current.Type != TokenParenOpen {
		return &types.Field{Name: name.Value, Position: name.Position}, nil
	}
	return p.parseFunctionCall(name)
}

// parseUnary parses prefix '-' and '!'. Negated numeric literals are folded
// into a single Number node.
func (p *Parser) parseUnary() (types.Node, error) {
	op := p.current
	p.advance()

	operand, err := p.parseExpression(precUnary)
	if err != nil {
		return nil, err
	}

	if op.Type == TokenMinus {
		if num, ok := operand.(*types.Number); ok {
			return &types.Number{Value: -num.Value, Position: op.Position}, nil
		}
		return &types.Unary{Op: types.OpNeg, Operand: operand, Position: op.Position}, nil
	}
	return &types.Unary{Op: types.OpNot, Operand: operand, Position: op.Position}, nil
}

// parseGrouping parses a parenthesized expression.
func (p *Parser) parseGrouping() (types.Node, error) {
	open := p.current
	p.advance() // Skip '('

	if p.current.Type == TokenParenClose {
		return nil, p.error(types.ErrUnexpectedToken, "empty parentheses")
	}

	expr, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}

	if p.current.Type != TokenParenClose {
		if p.current.Type == TokenEOF {
			return nil, p.errorAt(types.ErrUnbalancedParens, "unclosed '('", open)
		}
		return nil, p.expect(TokenParenClose)
	}
	p.advance()
	return expr, nil
}

// parseBinaryOp parses a left-associative binary operator.
func (p *Parser) parseBinaryOp(left types.Node) (types.Node, error) {
	op := p.current
	prec := p.getPrecedence(op.Type)
	p.advance()

	// Parse the right-hand side with appropriate precedence
	right, err := p.parseExpression(prec)
	if err != nil {
		return nil, err
	}

	return &types.Binary{
		Op:       operatorString(op.Type),
		Left:     left,
		Right:    right,
		Position: op.Position,
	}, nil
}

// parseFunctionCall parses the argument list of a call.
// Called when a name is followed by '('.
func (p *Parser) parseFunctionCall(name Token) (types.Node, error) {
	open := p.current
	p.advance() // Skip '('

	node := &types.Call{Name: name.Value, Args: []types.Node{}, Position: name.Position}

	if p.current.Type == TokenParenClose {
		p.advance()
		return node, nil
	}

	for {
		arg, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		node.Args = append(node.Args, arg)

		switch p.current.Type {
		case TokenParenClose:
			p.advance()
			return node, nil
		case TokenComma:
			comma := p.current
			p.advance()
			if p.current.Type == TokenParenClose {
				return nil, p.errorAt(types.ErrTrailingComma, "trailing comma in argument list", comma)
			}
		case TokenEOF:
			return nil, p.errorAt(types.ErrUnbalancedParens, fmt.Sprintf("unclosed argument list of %s", name.Value), open)
		default:
			if err := p.lexError(); err != nil {
				return nil, err
			}
			return nil, p.error(types.ErrExpectedToken, fmt.Sprintf("expected ',' or ')' but got %s", describe(p.current)))
		}
	}
}

// parseConditional parses a conditional (ternary) expression.
// Syntax: condition ? then_expr : else_expr
func (p *Parser) parseConditional(condition types.Node) (types.Node, error) {
	q := p.current
	p.advance() // Skip '?'

	thenExpr, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}

	if p.current.Type != TokenColon {
		if err := p.lexError(); err != nil {
			return nil, err
		}
		if p.current.Type == TokenEOF {
			return nil, p.error(types.ErrMissingConditional, "expected ':' of conditional but reached end of formula")
		}
		return nil, p.error(types.ErrMissingConditional, fmt.Sprintf("expected ':' of conditional but got %s", describe(p.current)))
	}
	p.advance() // Skip ':'

	// Right-associative: a ? b : c ? d : e == a ? b : (c ? d : e)
	elseExpr, err := p.parseExpression(precConditional - 1)
	if err != nil {
		return nil, err
	}

	return &types.Conditional{
		Cond:     condition,
		Then:     thenExpr,
		Else:     elseExpr,
		Position: q.Position,
	}, nil
}

// operatorString maps an operator token to its AST operator.
func operatorString(tt TokenType) string {
	switch tt {
	case TokenPlus:
		return types.OpAdd
	case TokenMinus:
		return types.OpSub
	case TokenMult:
		return types.OpMul
	case TokenDiv:
		return types.OpDiv
	case TokenConcat:
		return types.OpConcat
	case TokenEqual:
		return types.OpEq
	case TokenNotEqual:
		return types.OpNe
	case TokenLess:
		return types.OpLt
	case TokenLessEqual:
		return types.OpLe
	case TokenGreater:
		return types.OpGt
	case TokenGreaterEqual:
		return types.OpGe
	case TokenAnd:
		return types.OpAnd
	case TokenOr:
		return types.OpOr
	default:
		return tt.String()
	}
}

// describe renders a token for error messages.
func describe(t Token) string {
	switch t.Type {
	case TokenEOF:
		return "end of formula"
	case TokenName:
		return fmt.Sprintf("name %q", t.Value)
	case TokenNumber:
		return fmt.Sprintf("number %s", t.Value)
	case TokenString:
		return "string literal"
	default:
		return fmt.Sprintf("'%s'", t.Type.String())
	}
}
