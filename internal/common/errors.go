package common

import (
	"errors"
	"net/http"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	// Messages carries itemised, user-facing messages (validation failures).
	Messages []string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// AsAppError extracts the AppError from err. Anything else is reported as an
// opaque internal error so details never reach the client.
func AsAppError(err error) *AppError {
	var target *AppError
	if errors.As(err, &target) && target != nil {
		return target
	}
	return &AppError{Code: "INTERNAL", Message: "internal server error", HTTPStatus: http.StatusInternalServerError, Err: err}
}
