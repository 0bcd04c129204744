// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): unknown errors and logic (invariant) errors
//   - Validation errors (100-199): invalid parameters and configuration
//   - Module/dispatch errors (200-299): event dispatch and subscription errors
//   - Trading errors (300-399): order execution and position management errors
//   - Venue communication errors (400-499): transient venue I/O failures
//   - Market data errors (500-599): security registration and feed errors
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeOrderUnknown, "order is not known by the venue")
//
//	// Create a formatted error
//	err := errors.Newf(errors.ErrCodeSecurityNotFound, "security %s is not registered", symbol)
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeCommunication, "failed to submit order", originalErr)
//
//	// Check error code
//	if errors.HasCode(err, errors.ErrCodeCommunication) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsCommunication reports whether err is a transient venue I/O failure.
// Callers use it to decide between rescheduling an intent and failing it.
func IsCommunication(err error) bool {
	return HasCode(err, ErrCodeCommunication)
}

// RecursiveSubscriptionError is returned when registering a subscriber would
// create a cycle in the subscriber graph. Path holds the module instance
// names along the detected cycle, starting and ending with the service the
// registration was attempted on.
type RecursiveSubscriptionError struct {
	Path []string
}

// NewRecursiveSubscriptionError creates a RecursiveSubscriptionError for the
// given cycle path.
func NewRecursiveSubscriptionError(path []string) *RecursiveSubscriptionError {
	return &RecursiveSubscriptionError{Path: path}
}

// Error implements the error interface.
func (e *RecursiveSubscriptionError) Error() string {
	msg := "recursive subscription: "
	for i, name := range e.Path {
		if i > 0 {
			msg += " -> "
		}

		msg += name
	}

	return msg
}

// IsRecursiveSubscription checks if an error is a RecursiveSubscriptionError.
// It uses errors.As to check the error chain.
func IsRecursiveSubscription(err error) bool {
	var recursiveErr *RecursiveSubscriptionError

	return errors.As(err, &recursiveErr)
}
