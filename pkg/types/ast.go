package types

import (
	"strconv"
	"strings"
)

// Node is a node of a formula Abstract Syntax Tree.
//
// The set of implementations is closed: *Number, *String, *Field, *Call,
// *Binary, *Unary and *Conditional. Nodes are immutable once the parser has
// returned them and may be shared read-only by concurrent evaluations.
type Node interface {
	// Pos returns the byte offset of the node's token in the formula source.
	Pos() int
	// String renders the node back to formula syntax.
	String() string

	node()
}

// Binary operators.
const (
	OpAdd    = "+"
	OpSub    = "-"
	OpMul    = "*"
	OpDiv    = "/"
	OpEq     = "=="
	OpNe     = "!="
	OpLt     = "<"
	OpLe     = "<="
	OpGt     = ">"
	OpGe     = ">="
	OpAnd    = "&&"
	OpOr     = "||"
	OpConcat = "&"
)

// Unary operators.
const (
	OpNeg = "-"
	OpNot = "!"
)

// Number is a numeric literal.
type Number struct {
	Value    float64
	Position int
}

// String is a string literal with escapes already resolved.
type String struct {
	Value    string
	Position int
}

// Field references a value of the current row by name.
type Field struct {
	Name     string
	Position int
}

// Call invokes a built-in or remote function. Arity is not fixed by the grammar.
type Call struct {
	Name     string
	Args     []Node
	Position int
}

// Binary applies a binary operator to two operands.
type Binary struct {
	Op       string
	Left     Node
	Right    Node
	Position int // position of the operator token
}

// Unary applies a prefix operator.
type Unary struct {
	Op       string
	Operand  Node
	Position int
}

// Conditional is the ternary cond ? then : else.
type Conditional struct {
	Cond     Node
	Then     Node
	Else     Node
	Position int // position of the '?' token
}

func (n *Number) Pos() int      { return n.Position }
func (n *String) Pos() int      { return n.Position }
func (n *Field) Pos() int       { return n.Position }
func (n *Call) Pos() int        { return n.Position }
func (n *Binary) Pos() int      { return n.Position }
func (n *Unary) Pos() int       { return n.Position }
func (n *Conditional) Pos() int { return n.Position }

func (*Number) node()      {}
func (*String) node()      {}
func (*Field) node()       {}
func (*Call) node()        {}
func (*Binary) node()      {}
func (*Unary) node()       {}
func (*Conditional) node() {}

func (n *Number) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (n *String) String() string {
	return strconv.Quote(n.Value)
}

func (n *Field) String() string {
	return n.Name
}

func (n *Call) String() string {
	var b strings.Builder
	b.WriteString(n.Name)
	b.WriteByte('(')
	for i, arg := range n.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(arg.String())
	}
	b.WriteByte(')')
	return b.String()
}

// String fully parenthesizes the expression so the rendering re-parses to
// the same tree regardless of precedence.
func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + n.Op + " " + n.Right.String() + ")"
}

func (n *Unary) String() string {
	return n.Op + n.Operand.String()
}

func (n *Conditional) String() string {
	return "(" + n.Cond.String() + " ? " + n.Then.String() + " : " + n.Else.String() + ")"
}

// Walk traverses the tree depth-first in source order, calling fn for every
// node. Children are skipped when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch v := n.(type) {
	case *Number, *String, *Field:
	case *Call:
		for _, arg := range v.Args {
			Walk(arg, fn)
		}
	case *Binary:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *Unary:
		Walk(v.Operand, fn)
	case *Conditional:
		Walk(v.Cond, fn)
		Walk(v.Then, fn)
		Walk(v.Else, fn)
	}
}

// Equal reports whether two trees are structurally identical, positions included.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case *Number:
		y, ok := b.(*Number)
		return ok && x.Position == y.Position && (x.Value == y.Value || (x.Value != x.Value && y.Value != y.Value))
	case *String:
		y, ok := b.(*String)
		return ok && *x == *y
	case *Field:
		y, ok := b.(*Field)
		return ok && *x == *y
	case *Call:
		y, ok := b.(*Call)
		if !ok || x.Name != y.Name || x.Position != y.Position || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !Equal(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && x.Position == y.Position && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case *Unary:
		y, ok := b.(*Unary)
		return ok && x.Op == y.Op && x.Position == y.Position && Equal(x.Operand, y.Operand)
	case *Conditional:
		y, ok := b.(*Conditional)
		return ok && x.Position == y.Position && Equal(x.Cond, y.Cond) && Equal(x.Then, y.Then) && Equal(x.Else, y.Else)
	case nil:
		return b == nil
	default:
		return false
	}
}
