package errors

import (
	"errors"
	"fmt"
	"net/http"

	"coview/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeRoleMismatch ErrorCode = "ROLE_MISMATCH"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeSessionEnded ErrorCode = "SESSION_ENDED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and HTTP mapping
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// FromDomain maps core sentinel errors onto HTTP-facing application errors.
// Unknown errors become internal errors.
func FromDomain(err error) *AppError {
	switch {
	case errors.Is(err, domain.ErrInvalidSignalFormat):
		return &AppError{Code: ErrCodeInvalidInput, Message: err.Error(), HTTPStatus: http.StatusBadRequest, Cause: err}
	case errors.Is(err, domain.ErrSignalRoleMismatch):
		return &AppError{Code: ErrCodeRoleMismatch, Message: err.Error(), HTTPStatus: http.StatusUnprocessableEntity, Cause: err}
	case errors.Is(err, domain.ErrAlreadyNegotiating):
		return &AppError{Code: ErrCodeConflict, Message: err.Error(), HTTPStatus: http.StatusConflict, Cause: err}
	case errors.Is(err, domain.ErrSessionTerminal):
		return &AppError{Code: ErrCodeSessionEnded, Message: err.Error(), HTTPStatus: http.StatusGone, Cause: err}
	default:
		return &AppError{Code: ErrCodeInternal, Message: "internal error", HTTPStatus: http.StatusInternalServerError, Cause: err}
	}
}
