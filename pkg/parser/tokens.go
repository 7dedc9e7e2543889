package parser

// TokenType represents the type of a lexical token.
type TokenType uint8

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenString // "hello" or 'hello'
	TokenNumber // 123, 3.14, 1e-10
	TokenName   // field or function name

	// Punctuation
	TokenParenOpen  // (
	TokenParenClose // )
	TokenComma      // ,
	TokenColon      // :
	TokenCondition  // ?

	// Arithmetic operators
	TokenPlus   // +
	TokenMinus  // -
	TokenMult   // *
	TokenDiv    // /
	TokenConcat // &

	// Comparison operators
	TokenEqual        // ==
	TokenNotEqual     // !=
	TokenLess         // <
	TokenLessEqual    // <=
	TokenGreater      // >
	TokenGreaterEqual // >=

	// Logical operators
	TokenAnd // &&
	TokenOr  // ||
	TokenNot // !
)

// Kind groups token types into the coarse classes editors highlight.
type Kind uint8

const (
	KindEOF Kind = iota
	KindError
	KindNumber
	KindString
	KindIdentifier
	KindOperator
	KindPunctuation
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindEOF:
		return "end-of-input"
	case KindError:
		return "error"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindIdentifier:
		return "identifier"
	case KindOperator:
		return "operator"
	case KindPunctuation:
		return "punctuation"
	default:
		return "unknown"
	}
}

// Kind returns the coarse class of the token type.
func (tt TokenType) Kind() Kind {
	switch tt {
	case TokenEOF:
		return KindEOF
	case TokenError:
		return KindError
	case TokenNumber:
		return KindNumber
	case TokenString:
		return KindString
	case TokenName:
		return KindIdentifier
	case TokenParenOpen, TokenParenClose, TokenComma, TokenColon, TokenCondition:
		return KindPunctuation
	default:
		return KindOperator
	}
}

// String returns a string representation of the token type.
func (tt TokenType) String() string {
	switch tt {
	case TokenEOF:
		return "(end)"
	case TokenError:
		return "(error)"
	case TokenString:
		return "(string)"
	case TokenNumber:
		return "(number)"
	case TokenName:
		return "(name)"
	case TokenParenOpen:
		return "("
	case TokenParenClose:
		return ")"
	case TokenComma:
		return ","
	case TokenColon:
		return ":"
	case TokenCondition:
		return "?"
	case TokenPlus:
		return "+"
	case TokenMinus:
		return "-"
	case TokenMult:
		return "*"
	case TokenDiv:
		return "/"
	case TokenConcat:
		return "&"
	case TokenEqual:
		return "=="
	case TokenNotEqual:
		return "!="
	case TokenLess:
		return "<"
	case TokenLessEqual:
		return "<="
	case TokenGreater:
		return ">"
	case TokenGreaterEqual:
		return ">="
	case TokenAnd:
		return "&&"
	case TokenOr:
		return "||"
	case TokenNot:
		return "!"
	default:
		return "(unknown)"
	}
}

// Token represents a lexical token in a formula.
type Token struct {
	Type     TokenType // Type of the token
	Value    string    // Raw text of the token (string tokens exclude the quotes)
	Position int       // Starting byte offset in the input string
}

// Kind returns the coarse class of the token.
func (t Token) Kind() Kind {
	return t.Type.Kind()
}

// symbols1 maps single-character symbols to token types.
var symbols1 = [...]TokenType{
	'(': TokenParenOpen,
	')': TokenParenClose,
	',': TokenComma,
	':': TokenColon,
	'?': TokenCondition,
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenMult,
	'/': TokenDiv,
	'&': TokenConcat,
	'<': TokenLess,
	'>': TokenGreater,
	'!': TokenNot,
}

// runeTokenType pairs a rune with its corresponding token type.
type runeTokenType struct {
	r  rune
	tt TokenType
}

// symbols2 maps two-character symbol sequences to token types.
// The key is the first character of the sequence.
var symbols2 = [...][]runeTokenType{
	'=': {{'=', TokenEqual}},
	'!': {{'=', TokenNotEqual}},
	'<': {{'=', TokenLessEqual}, {'>', TokenNotEqual}},
	'>': {{'=', TokenGreaterEqual}},
	'&': {{'&', TokenAnd}},
	'|': {{'|', TokenOr}},
}

const (
	symbol1Count = rune(len(symbols1))
	symbol2Count = rune(len(symbols2))
)

// lookupSymbol1 returns the token type for a single-character symbol.
// Returns 0 if the rune is not a valid symbol.
func lookupSymbol1(r rune) TokenType {
	if r < 0 || r >= symbol1Count {
		return 0
	}
	return symbols1[r]
}

// lookupSymbol2 returns possible two-character symbol completions.
// Returns nil if the rune cannot start a two-character symbol.
func lookupSymbol2(r rune) []runeTokenType {
	if r < 0 || r >= symbol2Count {
		return nil
	}
	return symbols2[r]
}
