// Package errors provides the structured error taxonomy shared by every
// artgrid package.
//
// Each error carries a machine-readable Code so callers can decide how to
// react without matching on message text:
//   - CodeInput: missing or conflicting arguments, malformed input shapes
//   - CodeResourceUnavailable: a fetch failed or timed out
//   - CodeStateConflict: a non-idempotent operation was attempted twice
//   - CodeSerialization: an entity still holds in-memory-only buffers
//   - CodeInternal: anything else (codec failures, unexpected I/O)
//
// # Usage
//
//	err := errors.New(errors.CodeInput, "thumbnail width must be positive, got %d", w)
//	if errors.Is(err, errors.CodeInput) {
//	    // reject the request
//	}
//
//	err = errors.Wrap(errors.CodeResourceUnavailable, cause, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for each failure category.
const (
	CodeInput               Code = "INPUT"
	CodeResourceUnavailable Code = "RESOURCE_UNAVAILABLE"
	CodeStateConflict       Code = "STATE_CONFLICT"
	CodeSerialization       Code = "SERIALIZATION"
	CodeInternal            Code = "INTERNAL"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Input is shorthand for New(CodeInput, ...).
func Input(format string, args ...any) *Error {
	return New(CodeInput, format, args...)
}

// Conflict is shorthand for New(CodeStateConflict, ...).
func Conflict(format string, args ...any) *Error {
	return New(CodeStateConflict, format, args...)
}

// Unavailable wraps cause as a CodeResourceUnavailable error.
func Unavailable(cause error, format string, args ...any) *Error {
	return Wrap(CodeResourceUnavailable, cause, format, args...)
}

// Annotate wraps err with a message and keeps its code; an uncoded err
// becomes CodeInternal.
func Annotate(err error, format string, args ...any) *Error {
	code := GetCode(err)
	if code == "" {
		code = CodeInternal
	}
	return Wrap(code, err, format, args...)
}
