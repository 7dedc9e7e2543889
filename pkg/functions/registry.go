// Package functions provides the types callers use to supply remote
// functions to the formula evaluator.
//
// A remote function is any capability the host application can answer
// asynchronously: an inventory lookup, a recipe estimate, a WASM plugin.
// The evaluator never performs I/O itself; it only calls the functions
// found in the table it was given.
//
// # Example
//
//	remote := functions.Remote{
//	    "INVENTORY_ON_HAND": func(ctx context.Context, args ...interface{}) (interface{}, error) {
//	        return store.OnHand(ctx, args[0])
//	    },
//	}
//	ev := evaluator.New(evaluator.WithRemoteFunctions(remote))
package functions

import (
	"context"
	"sort"
	"strings"
)

// RemoteFunc is the signature of a remote function.
// args contains the evaluated call arguments in order (float64, string,
// bool, nil or types.Undefined). The function returns a formula value or an
// error; errors surface in the cell as remote function failures.
type RemoteFunc func(ctx context.Context, args ...interface{}) (interface{}, error)

// RemoteFunctionDef describes a remote function together with the names
// of its parameters, used by catalogs and argument encoding.
type RemoteFunctionDef struct {
	// Name is the function name as it appears inside formulas.
	Name string
	// Description is a one-line human readable summary.
	Description string
	// Params are the parameter names in call order.
	Params []string
	// Fn is the implementation.
	Fn RemoteFunc
}

// Remote maps function names to their implementations.
// A nil Remote is an empty table.
type Remote map[string]RemoteFunc

// Lookup returns the function registered under name. An exact match wins;
// otherwise names are compared case-insensitively.
func (r Remote) Lookup(name string) (RemoteFunc, bool) {
	if len(r) == 0 {
		return nil, false
	}
	if fn, ok := r[name]; ok {
		return fn, true
	}
	for k, fn := range r {
		if strings.EqualFold(k, name) {
			return fn, true
		}
	}
	return nil, false
}

// Has reports whether name resolves to a remote function.
func (r Remote) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered names in sorted order.
func (r Remote) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new table containing the entries of r overlaid with
// those of others, later tables winning.
func (r Remote) Merge(others ...Remote) Remote {
	out := make(Remote, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// FromDefs builds a table from function definitions.
func FromDefs(defs ...RemoteFunctionDef) Remote {
	out := make(Remote, len(defs))
	for _, d := range defs {
		out[d.Name] = d.Fn
	}
	return out
}
