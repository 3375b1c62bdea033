package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cocdeshijie/MikaniroBytes/internal/policy"
)

// Error is a failure with the HTTP status it maps to.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode reports the HTTP status of the error.
func (e *Error) StatusCode() int {
	return e.Status
}

func newError(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

func badRequest(msg string) *Error {
	return newError(http.StatusBadRequest, msg)
}

func notFound(msg string) *Error {
	return newError(http.StatusNotFound, msg)
}

func forbidden(msg string) *Error {
	return newError(http.StatusForbidden, msg)
}

// internal wraps an unexpected storage or database failure.
func internal(op string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

var (
	ErrUnauthorized         = newError(http.StatusUnauthorized, "unauthorized")
	ErrPublicUploadDisabled = forbidden("Public uploads disabled")
	ErrForbidden            = forbidden("Forbidden")
	ErrNotFound             = notFound("File not found.")
	ErrSuperAdminOnly       = forbidden("Only SUPER_ADMIN allowed")
)

// rejected maps a policy rejection to its HTTP status.
func rejected(r *policy.Rejection) *Error {
	status := http.StatusBadRequest
	if r.Reason == policy.SizeExceeded || r.Reason == policy.QuotaExceeded {
		status = http.StatusRequestEntityTooLarge
	}
	return &Error{Status: status, Message: r.Error(), Err: r}
}

// ConflictError means an archive entry's destination is already taken.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("File already exists at '%s'.", e.Path)
}

// IsConflict reports whether err is a destination conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
