// Package cell keeps the displayed state of computed cells while their
// formulas are evaluated.
//
// Every evaluation of a cell is tagged with a fresh generation. When the
// formula or row of a cell changes, or the cell is forgotten, while an
// evaluation is still in flight, the late result carries a superseded
// generation and is dropped instead of overwriting the newer state.
package cell

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rockcut/gridformula/pkg/evaluator"
	"github.com/rockcut/gridformula/pkg/types"
)

// Key addresses one cell: a row identifier and a computed column.
type Key struct {
	Row    string
	Column string
}

// Generation identifies one evaluation of a cell.
type Generation = uuid.UUID

// ChangeFunc is called after a cell state has been replaced.
type ChangeFunc func(key Key, state types.CellState)

type slot struct {
	gen   Generation
	state types.CellState
}

// Tracker stores the current state of each cell. It is safe for
// concurrent use.
type Tracker struct {
	ev       *evaluator.Evaluator
	onChange ChangeFunc

	mu    sync.RWMutex
	cells map[Key]slot
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithOnChange registers a callback run after every applied state change.
// The callback runs without the tracker lock held.
func WithOnChange(fn ChangeFunc) Option {
	return func(t *Tracker) {
		t.onChange = fn
	}
}

// NewTracker returns a tracker evaluating with ev.
func NewTracker(ev *evaluator.Evaluator, opts ...Option) *Tracker {
	t := &Tracker{ev: ev, cells: make(map[Key]slot)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts a new generation for key and marks the cell pending.
// Results of earlier generations are dropped from now on.
func (t *Tracker) Begin(key Key) Generation {
	gen := uuid.New()
	t.mu.Lock()
	t.cells[key] = slot{gen: gen, state: types.Pending()}
	t.mu.Unlock()
	t.notify(key, types.Pending())
	return gen
}

// Apply stores state if gen is still the current generation of key.
func (t *Tracker) Apply(key Key, gen Generation, state types.CellState) bool {
	t.mu.Lock()
	cur, ok := t.cells[key]
	if !ok || cur.gen != gen {
		t.mu.Unlock()
		return false
	}
	t.cells[key] = slot{gen: gen, state: state}
	t.mu.Unlock()
	t.notify(key, state)
	return true
}

// Evaluate runs one evaluation of expr for key and applies the result if
// no newer evaluation started meanwhile. It returns the settled state and
// whether it was applied.
func (t *Tracker) Evaluate(ctx context.Context, key Key, expr *types.Expression, row types.Row, allRows []types.Row) (types.CellState, bool) {
	gen := t.Begin(key)
	state := t.ev.EvalCell(ctx, expr, row, allRows)
	return state, t.Apply(key, gen, state)
}

// Start begins an evaluation in the background. The returned channel
// receives true if the result was applied and is then closed.
func (t *Tracker) Start(ctx context.Context, key Key, expr *types.Expression, row types.Row, allRows []types.Row) <-chan bool {
	gen := t.Begin(key)
	done := make(chan bool, 1)
	go func() {
		defer close(done)
		state := t.ev.EvalCell(ctx, expr, row, allRows)
		done <- t.Apply(key, gen, state)
	}()
	return done
}

// State returns the current state of key.
func (t *Tracker) State(key Key) (types.CellState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.cells[key]
	return s.state, ok
}

// Current returns the current generation of key.
func (t *Tracker) Current(key Key) (Generation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.cells[key]
	return s.gen, ok
}

// Forget removes key. In-flight results for it are dropped.
func (t *Tracker) Forget(key Key) {
	t.mu.Lock()
	delete(t.cells, key)
	t.mu.Unlock()
}

// ForgetColumn removes every cell of a computed column, for example when
// its formula is deleted.
func (t *Tracker) ForgetColumn(column string) {
	t.mu.Lock()
	for k := range t.cells {
		if k.Column == column {
			delete(t.cells, k)
		}
	}
	t.mu.Unlock()
}

// Snapshot returns a copy of all cell states.
func (t *Tracker) Snapshot() map[Key]types.CellState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[Key]types.CellState, len(t.cells))
	for k, s := range t.cells {
		out[k] = s.state
	}
	return out
}

// Len returns the number of tracked cells.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cells)
}

func (t *Tracker) notify(key Key, state types.CellState) {
	if t.onChange != nil {
		t.onChange(key, state)
	}
}
