package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rockcut/gridformula/pkg/types"
)

// Graph is the dependency graph of the computed columns of one grid.
// Edges point from a column to the fields its formula reads. Fields that
// are not computed columns are leaves.
//
// A Graph is not safe for concurrent mutation.
type Graph struct {
	precedents map[string]Set // column -> fields it reads
	dependents map[string]Set // field -> columns reading it
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		precedents: make(map[string]Set),
		dependents: make(map[string]Set),
	}
}

// Set records the formula of a computed column, replacing any previous one.
func (g *Graph) Set(column string, node types.Node) {
	g.Remove(column)
	fields := ExtractFields(node)
	g.precedents[column] = fields
	for f := range fields {
		if g.dependents[f] == nil {
			g.dependents[f] = Set{}
		}
		g.dependents[f][column] = struct{}{}
	}
}

// Remove drops a computed column and its edges.
func (g *Graph) Remove(column string) {
	for f := range g.precedents[column] {
		delete(g.dependents[f], column)
		if len(g.dependents[f]) == 0 {
			delete(g.dependents, f)
		}
	}
	delete(g.precedents, column)
}

// Columns returns the computed columns in lexical order.
func (g *Graph) Columns() []string {
	out := make([]string, 0, len(g.precedents))
	for c := range g.precedents {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the computed columns that must be re-evaluated when
// field changes, directly or transitively, in lexical order.
func (g *Graph) Dependents(field string) []string {
	visited := Set{}
	var visit func(string)
	visit = func(f string) {
		for c := range g.dependents[f] {
			if visited.Has(c) {
				continue
			}
			visited[c] = struct{}{}
			visit(c)
		}
	}
	visit(field)
	return visited.Sorted()
}

// Order returns the computed columns in an order where every column comes
// after the computed columns it reads. A cycle yields a CircularReference
// error naming the columns on it.
func (g *Graph) Order() ([]string, error) {
	// unvisited: absent; visiting: false; visited: true
	state := make(map[string]bool, len(g.precedents))
	order := make([]string, 0, len(g.precedents))
	var stack []string

	var visit func(string) error
	visit = func(c string) error {
		if done, seen := state[c]; seen {
			if done {
				return nil
			}
			return cycleError(stack, c)
		}
		state[c] = false
		stack = append(stack, c)

		for _, f := range g.precedents[c].Sorted() {
			if _, computed := g.precedents[f]; !computed {
				continue
			}
			if err := visit(f); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[c] = true
		order = append(order, c)
		return nil
	}

	for _, c := range g.Columns() {
		if err := visit(c); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func cycleError(stack []string, back string) *types.Error {
	start := 0
	for i, c := range stack {
		if c == back {
			start = i
			break
		}
	}
	path := append(append([]string{}, stack[start:]...), back)
	return types.NewError(types.ErrCircularReference,
		fmt.Sprintf("circular reference: %s", strings.Join(path, " -> ")), -1).WithToken(back)
}
