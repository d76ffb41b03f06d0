package types

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InternalServiceError ErrorCode = "INTERNAL_SERVICE_ERROR"
	ConfigurationError   ErrorCode = "CONFIGURATION_ERROR"
	ValidationError      ErrorCode = "VALIDATION_ERROR"
	ConflictError        ErrorCode = "CONFLICT"
	SettlementError      ErrorCode = "SETTLEMENT_ERROR"
	IntegrityError       ErrorCode = "INTEGRITY_ERROR"
	NotFound             ErrorCode = "NOT_FOUND"
)

func (e ErrorCode) String() string {
	return string(e)
}

// Error is the error returned by service operations. StatusCode is the
// http status an API layer should surface for it.
type Error struct {
	StatusCode int
	ErrorCode  ErrorCode
	Err        error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(statusCode int, errorCode ErrorCode, err error) *Error {
	return &Error{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Err:        err,
	}
}

func NewErrorWithMsg(statusCode int, errorCode ErrorCode, msg string) *Error {
	return &Error{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Err:        errors.New(msg),
	}
}

func NewInternalServiceError(err error) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		ErrorCode:  InternalServiceError,
		Err:        err,
	}
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{
		StatusCode: http.StatusBadRequest,
		ErrorCode:  ValidationError,
		Err:        fmt.Errorf(format, args...),
	}
}

// NewUnavailableError is returned when the operation depends on a settlement
// source that is not configured on this instance.
func NewUnavailableError(msg string) *Error {
	return &Error{
		StatusCode: http.StatusServiceUnavailable,
		ErrorCode:  ConfigurationError,
		Err:        errors.New(msg),
	}
}

func NewSettlementError(err error) *Error {
	return &Error{
		StatusCode: http.StatusBadGateway,
		ErrorCode:  SettlementError,
		Err:        err,
	}
}

func NewConflictError(msg string) *Error {
	return &Error{
		StatusCode: http.StatusConflict,
		ErrorCode:  ConflictError,
		Err:        errors.New(msg),
	}
}

// HasErrorCode reports whether err is an *Error carrying the given code.
func HasErrorCode(err error, code ErrorCode) bool {
	var typedErr *Error
	if errors.As(err, &typedErr) {
		return typedErr.ErrorCode == code
	}
	return false
}
