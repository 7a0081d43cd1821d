package rframe

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Error kinds. Every *Error returned by this package unwraps to exactly one
// of these, so callers can branch with errors.Is.
var (
	ErrColumnNotFound = errors.New("column not found")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrNameCollision  = errors.New("name collision")
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrUnsupported    = errors.New("unsupported")
	ErrTooManyKeys    = errors.New("too many key columns")
	ErrLengthMismatch = errors.New("length mismatch")
	ErrParse          = errors.New("parse error")
)

// Error is a contract violation raised by a DataFrame operation.
type Error struct {
	// Op names the operation that failed, e.g. "sort" or "join".
	Op string
	// Kind is one of the Err* sentinels.
	Kind error
	// Reason identifies the offending column, row or value.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("DataFrame::%s error: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("DataFrame::%s error: %s", e.Op, e.Reason)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func wrapError(op string, kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Reason: kind.Error(), Err: cause}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err, kind error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Must unwraps (v, err) and panics with the formatted error when err is set.
// It is meant for scripts and examples where a violated contract should
// terminate the program.
func Must[T any](v T, err error) T {
	if err != nil {
		Logger().Error("contract violation", zap.Error(err))
		panic(err.Error())
	}
	return v
}
