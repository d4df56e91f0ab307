package common

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindValidation       ErrorKind = "bad request"
	KindUnauthorized     ErrorKind = "unauthorized"
	KindForbidden        ErrorKind = "forbidden"
	KindNotFound         ErrorKind = "not found"
	KindMethodNotAllowed ErrorKind = "method not allowed"
	KindTooManyRequests  ErrorKind = "too many requests"
	KindInternal         ErrorKind = "internal server error"
)

var kindStatus = map[ErrorKind]int{
	KindValidation:       http.StatusBadRequest,
	KindUnauthorized:     http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindMethodNotAllowed: http.StatusMethodNotAllowed,
	KindTooManyRequests:  http.StatusTooManyRequests,
	KindInternal:         http.StatusInternalServerError,
}

// AppError is an error that knows how it should be reported to a client.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Status() int {
	if s, ok := kindStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", resource, id)}
}

func NewTooManyRequestsError(message string) *AppError {
	return &AppError{Kind: KindTooManyRequests, Message: message}
}

// NewInternalError hides err from the client but keeps it for logging.
func NewInternalError(err error) *AppError {
	return &AppError{Kind: KindInternal, Err: err}
}

// AsAppError returns err as an AppError, treating anything unknown as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}
