package parser

import (
	"fmt"
	"unicode/utf8"

	"github.com/rockcut/gridformula/pkg/types"
)

const eof = -1

// Lexer converts a formula into a sequence of tokens.
// The implementation is based on Rob Pike's "Lexical Scanning in Go" technique.
//
// Lexing never fails: characters that cannot start a token and unterminated
// strings are returned as TokenError tokens carrying their offset, and the
// lexer resumes after them. The parser decides how to report them.
type Lexer struct {
	input   string // Input string being scanned
	length  int    // Length of input string
	start   int    // Start position of current token
	current int    // Current position in input
	width   int    // Width of last rune read
	err     *types.Error
}

// NewLexer creates a new lexer from the provided input string.
// The input is tokenized by successive calls to the Next method.
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		length: len(input),
	}
}

// Tokenize returns every token of text, ending with a single TokenEOF.
// Whitespace is not emitted.
func Tokenize(text string) []Token {
	l := NewLexer(text)
	var tokens []Token
	for {
		t := l.Next()
		tokens = append(tokens, t)
		if t.Type == TokenEOF {
			return tokens
		}
	}
}

// Next returns the next token from the input.
// When the end of the input is reached, Next returns TokenEOF for all subsequent calls.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	ch := l.nextRune()
	if ch == eof {
		return l.eof()
	}

	// Check for two-character symbols first (e.g., ==, <=, &&)
	if rts := lookupSymbol2(ch); rts != nil {
		for _, rt := range rts {
			if l.acceptRune(rt.r) {
				return l.newToken(rt.tt)
			}
		}
	}

	// Check for single-character symbols
	if tt := lookupSymbol1(ch); tt > 0 {
		return l.newToken(tt)
	}

	// String literals (single or double quoted)
	if ch == '"' || ch == '\'' {
		l.ignore()
		return l.scanString(ch)
	}

	// Number literals, including a leading decimal point (.5)
	if isDigit(ch) || (ch == '.' && isDigit(l.peek())) {
		l.backup()
		return l.scanNumber()
	}

	if isNameStart(ch) {
		return l.scanName()
	}

	switch ch {
	case '=':
		return l.error(types.ErrInvalidCharacter, "unexpected '=' (use '==' to compare)")
	case '|':
		return l.error(types.ErrInvalidCharacter, "unexpected '|' (use '||' for logical or)")
	}
	return l.error(types.ErrInvalidCharacter, fmt.Sprintf("invalid character %q", ch))
}

// Err returns the error attached to the most recent TokenError, if any.
func (l *Lexer) Err() *types.Error {
	return l.err
}

// scanString reads a string literal from the current position.
// The opening quote has already been consumed.
func (l *Lexer) scanString(quote rune) Token {
Loop:
	for {
		switch l.nextRune() {
		case quote:
			break Loop
		case '\\':
			// Consume escaped character
			if r := l.nextRune(); r != eof {
				break
			}
			fallthrough
		case eof:
			// Report at the opening quote so editors underline the literal.
			l.start--
			return l.error(types.ErrStringNotClosed, "unterminated string literal")
		}
	}

	l.backup()
	t := l.newToken(TokenString)
	t.Position-- // include the opening quote
	l.acceptRune(quote)
	l.ignore()
	return t
}

// scanNumber reads a number literal from the current position.
// Format: [0-9]*(\.[0-9]+)?([eE][+-]?[0-9]+)?
func (l *Lexer) scanNumber() Token {
	l.acceptAll(isDigit)

	// Decimal part
	if l.peek() == '.' {
		l.nextRune()
		if !l.acceptAll(isDigit) {
			// "1." is accepted as 1
			return l.newToken(TokenNumber)
		}
	}

	// Exponent part, only when digits follow
	if r := l.peek(); r == 'e' || r == 'E' {
		mark := l.current
		l.nextRune()
		l.acceptRunes2('+', '-')
		if !l.acceptAll(isDigit) {
			l.current = mark
			l.width = 0
		}
	}

	// A name glued to a number (e.g. 12abc) is not a valid token.
	if isNameStart(l.peek()) {
		l.acceptAll(isNameChar)
		return l.error(types.ErrInvalidNumber, fmt.Sprintf("invalid number %q", l.input[l.start:l.current]))
	}

	return l.newToken(TokenNumber)
}

// scanName reads an identifier: [A-Za-z_][A-Za-z0-9_]*.
// The first character has already been consumed.
func (l *Lexer) scanName() Token {
	l.acceptAll(isNameChar)
	return l.newToken(TokenName)
}

// Helper methods

func (l *Lexer) eof() Token {
	return Token{
		Type:     TokenEOF,
		Position: l.current,
	}
}

func (l *Lexer) error(code types.ErrorCode, message string) Token {
	t := l.newToken(TokenError)
	l.err = &types.Error{
		Code:     code,
		Message:  message,
		Position: t.Position,
		Token:    t.Value,
	}
	return t
}

func (l *Lexer) newToken(tt TokenType) Token {
	t := Token{
		Type:     tt,
		Value:    l.input[l.start:l.current],
		Position: l.start,
	}
	l.width = 0
	l.start = l.current
	return t
}

func (l *Lexer) nextRune() rune {
	if l.current >= l.length {
		l.width = 0
		return eof
	}

	r, w := utf8.DecodeRuneInString(l.input[l.current:])
	l.width = w
	l.current += w
	return r
}

func (l *Lexer) peek() rune {
	if l.current >= l.length {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.current:])
	return r
}

func (l *Lexer) backup() {
	l.current -= l.width
	l.width = 0
}

func (l *Lexer) ignore() {
	l.start = l.current
}

func (l *Lexer) acceptRune(r rune) bool {
	return l.accept(func(c rune) bool {
		return c == r
	})
}

func (l *Lexer) acceptRunes2(r1, r2 rune) bool {
	return l.accept(func(c rune) bool {
		return c == r1 || c == r2
	})
}

func (l *Lexer) accept(isValid func(rune) bool) bool {
	if isValid(l.nextRune()) {
		return true
	}
	l.backup()
	return false
}

func (l *Lexer) acceptAll(isValid func(rune) bool) bool {
	var matched bool
	for l.accept(isValid) {
		matched = true
	}
	return matched
}

func (l *Lexer) skipWhitespace() {
	l.acceptAll(isWhitespace)
	l.ignore()
}

// Character classification functions

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isNameStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNameChar(r rune) bool {
	return isNameStart(r) || isDigit(r)
}
