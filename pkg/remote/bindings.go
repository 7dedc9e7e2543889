package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/rockcut/gridformula/pkg/functions"
)

// Binding maps a formula function onto a server-side function. Positional
// formula arguments are sent as named arguments, in Params order.
type Binding struct {
	// Name is the function name used in formulas.
	Name string
	// Function is the server-side name; defaults to the lower-cased Name.
	Function string
	// Params are the argument names, one per formula argument.
	Params []string
	// Description is shown by the function catalog.
	Description string
}

// DefaultBindings returns the functions of the brewery API.
func DefaultBindings() []Binding {
	return []Binding{
		{Name: "INVENTORY_ON_HAND", Function: "inventory_on_hand", Params: []string{"ingredient_id"},
			Description: "Quantity of an ingredient currently in stock"},
		{Name: "EST_IBU", Function: "est_ibu", Params: []string{"recipe_id"},
			Description: "Estimated bitterness of a recipe in IBU"},
		{Name: "EST_OG", Function: "est_og", Params: []string{"recipe_id"},
			Description: "Estimated original gravity of a recipe"},
	}
}

func (b Binding) wireName() string {
	if b.Function != "" {
		return b.Function
	}
	return strings.ToLower(b.Name)
}

// Func returns the remote function for b, dispatched through c.
func (c *Client) Func(b Binding) functions.RemoteFunc {
	wire := b.wireName()
	return func(ctx context.Context, args ...interface{}) (interface{}, error) {
		if len(args) != len(b.Params) {
			return nil, fmt.Errorf("%s expects %d argument(s) (%s), got %d",
				b.Name, len(b.Params), strings.Join(b.Params, ", "), len(args))
		}
		named := make(map[string]interface{}, len(args))
		for i, p := range b.Params {
			named[p] = args[i]
		}
		return c.Call(ctx, wire, named)
	}
}

// Functions returns a remote function table for bindings, or for
// DefaultBindings when none are given.
func (c *Client) Functions(bindings ...Binding) functions.Remote {
	if len(bindings) == 0 {
		bindings = DefaultBindings()
	}
	defs := make([]functions.RemoteFunctionDef, 0, len(bindings))
	for _, b := range bindings {
		defs = append(defs, functions.RemoteFunctionDef{
			Name:        b.Name,
			Description: b.Description,
			Params:      b.Params,
			Fn:          c.Func(b),
		})
	}
	return functions.FromDefs(defs...)
}
