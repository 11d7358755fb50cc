// Package errs provides the unified error type used across all of s3shell.
//
// Every subsystem (filestore drivers, the shell, account sources, the
// gateway) wraps its native errors into *errs.Error before returning them.
// Protocol engines use the Is* predicates to map failures onto their own
// status codes without importing driver-specific packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindIO, "failed to copy object", err)
//
//	// In an engine, check the error kind:
//	if errs.IsNotFound(err) {
//	    reply(550, "no such file")
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown           ErrKind = iota
	ErrKindNotFound                  // no object, no prefix, no bucket
	ErrKindPermissionDenied          // access-control denial, store auth failure
	ErrKindDirectoryNotEmpty         // rmdir / rename blocked by children
	ErrKindNotImplemented            // unsupported operation shape
	ErrKindIO                        // transport or storage failure
	ErrKindConnectionFailed          // cannot reach the backend
	ErrKindTimeout                   // context deadline / cancellation
	ErrKindInvalidInput              // bad arguments from the caller
	ErrKindUnauthorized              // unknown identity at login
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindDirectoryNotEmpty:
		return "directory_not_empty"
	case ErrKindNotImplemented:
		return "not_implemented"
	case ErrKindIO:
		return "io_failure"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all s3shell subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err means the path or object resolves to nothing.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsDirectoryNotEmpty reports whether a removal or rename was blocked by children.
func IsDirectoryNotEmpty(err error) bool {
	return KindOf(err) == ErrKindDirectoryNotEmpty
}

// IsNotImplemented reports whether err rejects an unsupported operation shape.
func IsNotImplemented(err error) bool {
	return KindOf(err) == ErrKindNotImplemented
}

// IsIO reports whether err is a transport or storage failure. Connection
// failures and timeouts count as I/O failures too.
func IsIO(err error) bool {
	switch KindOf(err) {
	case ErrKindIO, ErrKindConnectionFailed, ErrKindTimeout:
		return true
	}
	return false
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsUnauthorized reports whether err rejects an unknown login identity.
func IsUnauthorized(err error) bool {
	return KindOf(err) == ErrKindUnauthorized
}

// KindOf extracts the ErrKind of the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
