// File: api/errors.go
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for the kio reactor core.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	// ErrTransition is the class sentinel for TransitionViolation values;
	// match with errors.Is.
	ErrTransition = errors.New("transition violation")

	ErrLinkDispatched   = fmt.Errorf("link already dispatched")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrNotSupported     = fmt.Errorf("operation not supported")
	ErrInCycle          = fmt.Errorf("operation not allowed inside a cycle")
	ErrSnapshotConsumed = fmt.Errorf("transfer snapshot already consumed this cycle")
	ErrOutsideCycle     = fmt.Errorf("no cycle has produced a transfer snapshot")
)

// TransitionViolation reports an operation attempted against an object
// already in a terminal or conflicting state (double-acquire, post-termination
// acquire, re-entrant cycle). Always recoverable by the caller; reactor state
// is left intact.
type TransitionViolation struct {
	Object string // what was operated on, e.g. "channel", "array"
	Op     string // the rejected operation
	State  string // the state that rejected it
}

// Error implements the error interface.
func (e *TransitionViolation) Error() string {
	return fmt.Sprintf("%s.%s: transition violation (%s)", e.Object, e.Op, e.State)
}

// Is makes every TransitionViolation match ErrTransition.
func (e *TransitionViolation) Is(target error) bool {
	return target == ErrTransition
}

// NewTransition builds a TransitionViolation for the given object/op/state.
func NewTransition(object, op, state string) *TransitionViolation {
	return &TransitionViolation{Object: object, Op: op, State: state}
}

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeTransition
	ErrCodeNotSupported
	ErrCodeOS
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
