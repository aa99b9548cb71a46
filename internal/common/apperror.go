package common

import (
	"errors"
	"net/http"
)

// ErrorKind classifies an API-visible failure. The kind decides the
// HTTP status; the message is safe to show callers.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "invalid_input"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindRateLimited     ErrorKind = "rate_limited"
	KindNotFound        ErrorKind = "not_found"
	KindInternal        ErrorKind = "internal"
)

// AppError is an error with a caller-safe classification.
type AppError struct {
	Kind    ErrorKind
	Message string
}

func (e *AppError) Error() string { return e.Message }

func NewAppError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func ErrInvalidInput(message string) *AppError { return NewAppError(KindInvalidInput, message) }
func ErrUnauthenticated(message string) *AppError {
	return NewAppError(KindUnauthenticated, message)
}
func ErrRateLimited(message string) *AppError { return NewAppError(KindRateLimited, message) }
func ErrNotFound(message string) *AppError    { return NewAppError(KindNotFound, message) }
func ErrInternal(message string) *AppError    { return NewAppError(KindInternal, message) }

// KindOf extracts the classification from any error. Unclassified
// errors are internal: their text is not exposed to callers.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to its response status.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
