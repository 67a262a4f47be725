// Package memerr defines the engine-wide error taxonomy. Every error that
// crosses a component boundary is (or wraps) a *memerr.Error so the
// Dispatcher can map it to a wire error code without inspecting package-
// specific error types.
package memerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the fixed error kinds from spec §7. It is never extended
// per-caller; new failure modes must map onto one of these.
type Kind string

const (
	InvalidParams      Kind = "InvalidParams"
	NotFound           Kind = "NotFound"
	Conflict           Kind = "Conflict"
	TooLarge           Kind = "TooLarge"
	CacheFull          Kind = "CacheFull"
	StorageUnavailable Kind = "StorageUnavailable"
	SchemaMismatch     Kind = "SchemaMismatch"
	RateLimited        Kind = "RateLimited"
	Cancelled          Kind = "Cancelled"
	Internal           Kind = "Internal"
)

// Error is the engine's wrapped error type. Cause is preserved (via
// github.com/pkg/errors) for logging but never serialized to the wire;
// callers only ever see Kind and Message.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the cause.
func (e *Error) Unwrap() error { return e.cause }

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a stack-preserving cause to a new *Error of the given kind.
// The cause itself is never exposed on the wire, only logged.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

// KindOf extracts the Kind from err if it is (or wraps) a *memerr.Error,
// defaulting to Internal for anything else so a bug never leaks an
// unclassified error straight to a caller.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Cause returns the full wrapped chain for logging (stack trace included
// when the cause was attached via Wrap).
func Cause(err error) error {
	var e *Error
	if errors.As(err, &e) && e.cause != nil {
		return e.cause
	}
	return err
}
