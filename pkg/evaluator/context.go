package evaluator

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rockcut/gridformula/pkg/types"
)

// EvalContext carries the data one evaluation reads: the current row and
// the full row set. It is shared read-only by the goroutines of a single
// evaluation.
type EvalContext struct {
	// row is the current record
	row types.Row

	// allRows is the full row collection of the grid
	allRows []types.Row

	// remote marks the nodes whose subtree calls a remote function
	remote map[types.Node]bool

	indexOnce sync.Once
	index     int
}

// NewContext creates a new evaluation context.
func NewContext(row types.Row, allRows []types.Row) *EvalContext {
	return &EvalContext{
		row:     row,
		allRows: allRows,
	}
}

// Row returns the current row.
func (c *EvalContext) Row() types.Row {
	return c.row
}

// AllRows returns the full row set.
func (c *EvalContext) AllRows() []types.Row {
	return c.allRows
}

// Field returns the normalized value of name in the current row, or
// types.Undefined when the row has no such key.
func (c *EvalContext) Field(name string) interface{} {
	if c.row == nil {
		return types.Undefined
	}
	v, ok := c.row[name]
	if !ok {
		return types.Undefined
	}
	return types.Normalize(v)
}

// Index returns the position of the current row in the row set, or -1 when
// the row is not a member (for example a row being created).
func (c *EvalContext) Index() int {
	c.indexOnce.Do(func() {
		c.index = -1
		if c.row == nil {
			return
		}
		ptr := reflect.ValueOf(c.row).Pointer()
		for i, r := range c.allRows {
			if r != nil && reflect.ValueOf(r).Pointer() == ptr {
				c.index = i
				return
			}
		}
	})
	return c.index
}

// String returns a string representation of the context.
func (c *EvalContext) String() string {
	return fmt.Sprintf("Context{fields=%d, rows=%d}", len(c.row), len(c.allRows))
}
