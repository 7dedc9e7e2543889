package types

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of formula error.
type ErrorCode string

// Error codes.
const (
	// S0xxx: Tokenizer/parser errors
	ErrStringNotClosed    ErrorCode = "S0101"
	ErrInvalidNumber      ErrorCode = "S0102"
	ErrUnsupportedEscape  ErrorCode = "S0103"
	ErrUnexpectedEnd      ErrorCode = "S0104"
	ErrSyntaxError        ErrorCode = "S0201"
	ErrExpectedToken      ErrorCode = "S0202"
	ErrInvalidCharacter   ErrorCode = "S0203"
	ErrMaxDepthExceeded   ErrorCode = "S0204"
	ErrEmptyFormula       ErrorCode = "S0205"
	ErrTrailingComma      ErrorCode = "S0206"
	ErrUnexpectedToken    ErrorCode = "S0207"
	ErrUnbalancedParens   ErrorCode = "S0208"
	ErrMissingConditional ErrorCode = "S0209"

	// T0xxx: Type errors
	ErrArgumentCount ErrorCode = "T0410"
	ErrTypeMismatch  ErrorCode = "T1003"

	// D0xxx: Evaluation errors
	ErrDivisionByZero    ErrorCode = "D1001"
	ErrCircularReference ErrorCode = "D3010"
	ErrInvalidArgument   ErrorCode = "D3020"

	// U0xxx: Name resolution errors
	ErrUnknownField    ErrorCode = "U1001"
	ErrUnknownFunction ErrorCode = "U1002"

	// R0xxx: Remote function errors
	ErrRemoteFunction ErrorCode = "R0001"
)

// Error represents a structured formula error.
type Error struct {
	Code     ErrorCode
	Message  string
	Position int
	Token    string
	Err      error
}

// NewError creates a new formula error. Use a negative position when the
// error has no meaningful source location.
func NewError(code ErrorCode, message string, position int) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Position: position,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("%s at position %d: %s", e.Code, e.Position, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithToken adds token information to the error.
func (e *Error) WithToken(token string) *Error {
	e.Token = token
	return e
}

// WithCause wraps another error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// IsSyntax reports whether the code belongs to the tokenizer/parser class.
func (c ErrorCode) IsSyntax() bool {
	return len(c) > 0 && c[0] == 'S'
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsSyntax reports whether err is a tokenizer or parser error.
func IsSyntax(err error) bool {
	return CodeOf(err).IsSyntax()
}

// PositionOf returns the source position carried by err, or -1.
func PositionOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Position
	}
	return -1
}

// Constructors for the evaluation-time taxonomy.

// UnknownFunction reports a call to a name that is neither remote nor built-in.
func UnknownFunction(name string, pos int) *Error {
	return NewError(ErrUnknownFunction, fmt.Sprintf("unknown function: %s", name), pos).WithToken(name)
}

// UnknownField reports a reference to a field the caller does not know.
func UnknownField(name string, pos int) *Error {
	return NewError(ErrUnknownField, fmt.Sprintf("unknown field: %s", name), pos).WithToken(name)
}

// TypeMismatch reports an operand whose runtime type the operator cannot use.
func TypeMismatch(op string, operand interface{}, pos int) *Error {
	return NewError(ErrTypeMismatch,
		fmt.Sprintf("operator %s cannot be applied to %s value %s", op, TypeName(operand), Format(operand)), pos).WithToken(op)
}

// RemoteFailure wraps the error returned by a remote function.
func RemoteFailure(name string, cause error, pos int) *Error {
	msg := "remote call failed"
	if cause != nil {
		msg = cause.Error()
	}
	return NewError(ErrRemoteFunction, fmt.Sprintf("%s: %s", name, msg), pos).WithToken(name).WithCause(cause)
}
