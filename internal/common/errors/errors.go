// Package errors provides the coded application error used across the service.
//
// Every error that crosses a package boundary is an *AppError carrying a stable
// Code (what went wrong) and a Category (what the caller can do about it).
// Transports map the category to a status; errors.Is matches on Code.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

// Generic codes. Domain packages declare their own codes on top of these.
const (
	ErrCodeInternal        ErrorCode = "INTERNAL"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeUnavailable     ErrorCode = "UNAVAILABLE"
)

// Category groups codes by how a caller is expected to react.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryResource      Category = "resource"
	CategoryAuthorization Category = "authorization"
	CategoryStateConflict Category = "state_conflict"
	CategoryDependency    Category = "dependency"
	CategoryInternal      Category = "internal"
)

// AppError is the error type returned by services and repositories.
type AppError struct {
	Code     ErrorCode
	Category Category
	Message  string
	Err      error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is reports whether target is an *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of e with a more specific message.
func (e *AppError) Withf(format string, args ...any) *AppError {
	return &AppError{
		Code:     e.Code,
		Category: e.Category,
		Message:  fmt.Sprintf(format, args...),
		Err:      e.Err,
	}
}

// Define creates an error with an explicit category.
func Define(category Category, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Category: category, Message: message}
}

// New creates an error whose category is derived from a generic code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Category: categoryFor(code), Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Category: categoryFor(code), Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource string, id any) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s %v not found", resource, id))
}

// InvalidInput reports a caller-correctable input problem on a named field.
func InvalidInput(field, message string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("%s: %s", field, message))
}

// As finds the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is is errors.Is re-exported so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// CodeOf returns the code of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// CategoryOf returns the category of err, or CategoryInternal for foreign errors.
func CategoryOf(err error) Category {
	if appErr, ok := As(err); ok {
		return appErr.Category
	}
	return CategoryInternal
}

func categoryFor(code ErrorCode) Category {
	switch code {
	case ErrCodeInvalidInput:
		return CategoryValidation
	case ErrCodeNotFound:
		return CategoryResource
	case ErrCodeConflict:
		return CategoryStateConflict
	case ErrCodeUnauthenticated, ErrCodeForbidden:
		return CategoryAuthorization
	case ErrCodeUnavailable:
		return CategoryDependency
	default:
		return CategoryInternal
	}
}
