package ecs

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrInvalidParameter reports a malformed argument or term
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidOperation reports an operation not allowed in the current state
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrParse reports an unparseable query expression
	ErrParse = errors.New("parse error")
	// ErrNotAlive reports an operation on a deleted or unknown entity
	ErrNotAlive = errors.New("entity is not alive")
	// ErrReadonly reports an immediate mutation attempted in a readonly phase
	ErrReadonly = errors.New("world is readonly")
)

// BuildError is a query construction error. Construction errors are
// fatal: the query is never created.
type BuildError struct {
	Kind error  // one of the Err* kinds
	Term int    // offending term index, -1 when not term specific
	Msg  string // human readable detail
}

// NewBuildError creates a construction error for the given term
func NewBuildError(kind error, term int, format string, args ...any) *BuildError {
	return &BuildError{Kind: kind, Term: term, Msg: fmt.Sprintf(format, args...)}
}

func (e *BuildError) Error() string {
	if e.Term >= 0 {
		return fmt.Sprintf("%v: term %d: %s", e.Kind, e.Term, e.Msg)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
}

func (e *BuildError) Unwrap() error {
	return e.Kind
}
