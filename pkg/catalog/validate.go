package catalog

import (
	"errors"
	"strings"

	"github.com/rockcut/gridformula/pkg/analysis"
	"github.com/rockcut/gridformula/pkg/parser"
	"github.com/rockcut/gridformula/pkg/types"
)

// Validation is the outcome of validating formula text.
type Validation struct {
	Valid bool `json:"valid"`
	// Error is the human readable problem; empty when Valid.
	Error string `json:"error,omitempty"`
	// ErrorPosition is the byte offset of the problem, -1 when unknown.
	ErrorPosition int `json:"errorPosition"`
	// Code classifies the problem.
	Code types.ErrorCode `json:"code,omitempty"`
	// Fields and Functions are set when the text parsed.
	Fields    []string `json:"fields,omitempty"`
	Functions []string `json:"functions,omitempty"`
}

// Validate parses text and checks every function it calls against cat and
// remoteNames, and every field it reads against knownFields. Calls to
// catalog entries must also fit the entry's argument bounds; remoteNames
// are not arity checked. The first problem in source order is reported
// with its position.
//
// A nil knownFields disables the field check. A nil cat means Default().
func Validate(text string, cat *Catalog, knownFields []string, remoteNames ...string) Validation {
	if cat == nil {
		cat = Default()
	}
	expr, err := parser.Parse(text)
	if err != nil {
		return invalid(err)
	}

	root := expr.AST()
	v := Validation{
		Valid:         true,
		ErrorPosition: -1,
		Fields:        analysis.ExtractFields(root).Sorted(),
		Functions:     analysis.ExtractFunctions(root).Sorted(),
	}

	remote := analysis.UpperNames(analysis.NewSet(remoteNames...))
	var fields analysis.Set
	if knownFields != nil {
		fields = analysis.NewSet(knownFields...)
	}

	for _, ref := range analysis.References(root) {
		switch ref.Kind {
		case analysis.FunctionRef:
			if remote.Has(strings.ToUpper(ref.Name)) {
				continue
			}
			e, ok := cat.Lookup(ref.Name)
			if !ok {
				return v.fail(types.UnknownFunction(ref.Name, ref.Pos))
			}
			if msg := e.Arity(ref.Args); msg != "" {
				return v.fail(types.NewError(types.ErrArgumentCount, msg, ref.Pos).WithToken(ref.Name))
			}
		case analysis.FieldRef:
			if fields == nil || fields.Has(ref.Name) {
				continue
			}
			return v.fail(types.UnknownField(ref.Name, ref.Pos))
		}
	}
	return v
}

func invalid(err error) Validation {
	v := Validation{Valid: false, Error: err.Error(), ErrorPosition: types.PositionOf(err)}
	var fe *types.Error
	if errors.As(err, &fe) {
		v.Error = fe.Message
		v.Code = fe.Code
	}
	return v
}

func (v Validation) fail(err *types.Error) Validation {
	v.Valid = false
	v.Error = err.Message
	v.ErrorPosition = err.Position
	v.Code = err.Code
	return v
}
