// Package apperror defines the typed errors raised at the engine boundary.
package apperror

import (
	"errors"
	"fmt"
)

// Error is an application error with a stable code, a user-facing message and
// an optional wrapped cause.
type Error struct {
	Code     string
	Message  string
	Internal error
	Details  map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error.
func (e *Error) Unwrap() error {
	return e.Internal
}

// Is matches errors by code, so copies made with WithInternal/WithMessage still
// compare equal to their sentinel via errors.Is.
func (e *Error) Is(target error) bool {
	var appErr *Error
	if !errors.As(target, &appErr) {
		return false
	}
	return e.Code == appErr.Code
}

// WithInternal returns a copy of the error with an internal error attached.
func (e *Error) WithInternal(err error) *Error {
	return &Error{
		Code:     e.Code,
		Message:  e.Message,
		Internal: err,
		Details:  e.Details,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		Code:     e.Code,
		Message:  message,
		Internal: e.Internal,
		Details:  e.Details,
	}
}

// WithMessagef is WithMessage with fmt.Sprintf formatting.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		Code:     e.Code,
		Message:  e.Message,
		Internal: e.Internal,
		Details:  details,
	}
}

// New creates a new application error.
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Common error definitions.
var (
	// ErrPermissionDenied is returned when the access-rights bitmask does not
	// allow the requested action, or an item-level pre-check query vetoed it.
	ErrPermissionDenied = New("permission_denied", "User has no permission for this action")

	// ErrInvalidState is returned for mutations the current item state forbids:
	// updating a removed or readonly item, deleting a Disallow entity type,
	// undeleting a Permanent entity type, or a cross-table-prefix type change.
	ErrInvalidState = New("invalid_state", "Operation not allowed in the current state")

	// ErrNotFound is returned when the target item or link does not exist.
	ErrNotFound = New("not_found", "Resource not found")

	// ErrConfiguration indicates bad entity/link metadata (unsupported security
	// method, unknown delete action, unsupported aggregation input type).
	ErrConfiguration = New("configuration_error", "Invalid entity configuration")

	// ErrInvalidArgument is returned when a caller passes an unusable argument
	// combination, such as a link-type lookup without any selector.
	ErrInvalidArgument = New("invalid_argument", "Invalid argument")

	// ErrDatabase wraps failures from the underlying query executor.
	ErrDatabase = New("database_error", "Database operation failed")
)
