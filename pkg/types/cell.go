package types

import "errors"

// CellStatus is the lifecycle stage of one cell's evaluation.
type CellStatus uint8

const (
	CellPending CellStatus = iota
	CellResolved
	CellError
)

// String returns a string representation of the status.
func (s CellStatus) String() string {
	switch s {
	case CellPending:
		return "pending"
	case CellResolved:
		return "resolved"
	case CellError:
		return "error"
	default:
		return "unknown"
	}
}

// CellState is the externally observable state of one (formula, row)
// evaluation. A state is created pending and replaced, never mutated, when
// the evaluation settles or is restarted.
type CellState struct {
	Status  CellStatus
	Value   interface{}
	Message string
	Err     error
}

// Pending returns the state of an evaluation that has not settled.
func Pending() CellState {
	return CellState{Status: CellPending}
}

// Resolved returns the state of an evaluation that produced v.
func Resolved(v interface{}) CellState {
	return CellState{Status: CellResolved, Value: v}
}

// Failed returns the state of an evaluation that failed with err.
// The message is the human readable part of a formula error, without code
// and position.
func Failed(err error) CellState {
	msg := ""
	if err != nil {
		msg = err.Error()
		var fe *Error
		if errors.As(err, &fe) {
			msg = fe.Message
		}
	}
	return CellState{Status: CellError, Message: msg, Err: err}
}

// StateOf converts a (value, error) pair into a settled state.
func StateOf(v interface{}, err error) CellState {
	if err != nil {
		return Failed(err)
	}
	return Resolved(v)
}

// IsPending reports whether the state has not settled.
func (s CellState) IsPending() bool { return s.Status == CellPending }

// IsError reports whether the state settled with an error.
func (s CellState) IsError() bool { return s.Status == CellError }

// Display returns what a grid cell shows for this state.
func (s CellState) Display() string {
	switch s.Status {
	case CellPending:
		return "…"
	case CellError:
		return "#ERR: " + s.Message
	default:
		return Format(s.Value)
	}
}
