// Package analysis inspects parsed formulas without evaluating them.
//
// It answers two questions a grid asks about a computed column: which
// fields does the formula read (so the column can be re-evaluated when they
// change), and which functions does it call. Graph combines the answers for
// many computed columns into an evaluation order and rejects cycles.
package analysis

import (
	"sort"
	"strings"

	"github.com/rockcut/gridformula/pkg/types"
)

// Set is an unordered set of names.
type Set map[string]struct{}

// NewSet returns a set containing names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets have the same members.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for n := range s {
		if !o.Has(n) {
			return false
		}
	}
	return true
}

// ReferenceKind distinguishes field references from function calls.
type ReferenceKind uint8

const (
	FieldRef ReferenceKind = iota
	FunctionRef
)

func (k ReferenceKind) String() string {
	if k == FunctionRef {
		return "function"
	}
	return "field"
}

// Reference is one occurrence of a name in a formula.
type Reference struct {
	Kind ReferenceKind
	Name string
	Pos  int
	// Args is the argument count of a FunctionRef.
	Args int
}

// References returns every field and function occurrence in source order.
// A name that occurs twice is reported twice.
func References(node types.Node) []Reference {
	var refs []Reference
	types.Walk(node, func(n types.Node) bool {
		switch v := n.(type) {
		case *types.Field:
			refs = append(refs, Reference{Kind: FieldRef, Name: v.Name, Pos: v.Position})
		case *types.Call:
			refs = append(refs, Reference{Kind: FunctionRef, Name: v.Name, Pos: v.Position, Args: len(v.Args)})
		case *types.Number, *types.String, *types.Binary, *types.Unary, *types.Conditional:
		}
		return true
	})
	return refs
}

// ExtractFields returns the names of the fields node reads.
func ExtractFields(node types.Node) Set {
	return collect(node, FieldRef)
}

// ExtractFunctions returns the names of the functions node calls, as
// written in the formula.
func ExtractFunctions(node types.Node) Set {
	return collect(node, FunctionRef)
}

func collect(node types.Node, kind ReferenceKind) Set {
	s := Set{}
	for _, r := range References(node) {
		if r.Kind == kind {
			s[r.Name] = struct{}{}
		}
	}
	return s
}

// SelfReferences reports whether the formula of a computed column reads the
// column's own field. Callers treat this as a configuration error.
func SelfReferences(column string, node types.Node) bool {
	return ExtractFields(node).Has(column)
}

// UpperNames returns the set with every name upper-cased, the form
// function names are resolved in.
func UpperNames(s Set) Set {
	out := make(Set, len(s))
	for n := range s {
		out[strings.ToUpper(n)] = struct{}{}
	}
	return out
}
