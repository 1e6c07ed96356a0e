// Package apperror defines the typed errors shared by every layer.
//
// Services return these; handlers translate them into flashes, redirects,
// or HTTP status codes. Nobody below the handler layer knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every *AppError wraps exactly one of them.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("unavailable")
)

// AppError pairs a sentinel with a message that is safe to show a user.
type AppError struct {
	Err     error
	Message string
	// Field names the form input at fault, for validation errors.
	Field string
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Err }

func newError(kind error, message string) *AppError {
	return &AppError{Err: kind, Message: message}
}

// NotFound reports a missing row by kind and key, e.g. "user not found
// with id 7". Use NotFoundMessage when the text reaches a user.
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s not found with id %s", resource, id))
}

// NotFoundMessage is NotFound with the message shown as-is ("Recipe not found").
func NotFoundMessage(message string) *AppError {
	return newError(ErrNotFound, message)
}

func ValidationFailed(field, message string) *AppError {
	e := newError(ErrValidation, message)
	e.Field = field
	return e
}

func Conflict(resource, id string) *AppError {
	return newError(ErrConflict, fmt.Sprintf("%s conflict with id %s", resource, id))
}

// ConflictMessage is Conflict with the message shown as-is
// ("Email already registered").
func ConflictMessage(message string) *AppError {
	return newError(ErrConflict, message)
}

// Forbidden maps to 403 on JSON routes.
func Forbidden(message string) *AppError {
	return newError(ErrForbidden, message)
}

// Unavailable marks a connectivity failure (database or storage
// unreachable). The cause stays in the chain for logging.
func Unavailable(message string, cause error) *AppError {
	return newError(fmt.Errorf("%w: %w", ErrUnavailable, cause), message)
}
