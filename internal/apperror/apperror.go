// Package apperror defines the application's error taxonomy.
//
// Every error that should reach a client as something other than a generic
// 500 is an *AppError wrapping one of the sentinel values below. Transport
// layers (REST handlers, the GraphQL resolver layer) map the sentinel to a
// status code with errors.Is, and read the message/violations with errors.As.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInternal        = errors.New("internal")
)

// FieldViolation describes a single invalid input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type AppError struct {
	Err        error            // actual error
	Message    string           // Human-readable error message
	Field      string           // Optional: field causing the error
	Violations []FieldViolation // Optional: every invalid field (validation only)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Field:      field,
		Violations: []FieldViolation{{Field: field, Message: message}},
	}
}

// Invalid bundles several field violations into one validation error.
// The Field of the returned error is the first violating field.
func Invalid(message string, violations []FieldViolation) *AppError {
	e := &AppError{
		Err:        ErrValidation,
		Message:    message,
		Violations: violations,
	}
	if len(violations) > 0 {
		e.Field = violations[0].Field
	}
	return e
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated returns an AppError for a gated operation attempted without
// valid credentials. HTTP handlers map this to 401 Unauthorized.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Internal wraps a backing-store or unexpected failure. The cause is kept for
// logs; clients only ever see the generic message.
func Internal(cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrInternal, cause),
		Message: "An internal error occurred",
	}
}
