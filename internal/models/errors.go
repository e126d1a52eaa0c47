package models

import (
	"errors"
	"fmt"
)

// Stable error kinds surfaced to callers.
const (
	CodeParams    = "PARAMS_ERROR"
	CodeNotLogin  = "NOT_LOGIN_ERROR"
	CodeNoAuth    = "NO_AUTH_ERROR"
	CodeNotFound  = "NOT_FOUND_ERROR"
	CodeOperation = "OPERATION_ERROR"
	CodeSystem    = "SYSTEM_ERROR"
)

var numericCodes = map[string]int{
	CodeParams:    40000,
	CodeNotLogin:  40100,
	CodeNoAuth:    40101,
	CodeNotFound:  40400,
	CodeSystem:    50000,
	CodeOperation: 50001,
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Numeric returns the wire code for the error kind.
func (e *AppError) Numeric() int {
	if n, ok := numericCodes[e.Code]; ok {
		return n
	}
	return numericCodes[CodeSystem]
}

// NewParamsError reports invalid caller input.
func NewParamsError(message string) *AppError {
	return &AppError{Code: CodeParams, Message: message}
}

// NewNotLoginError reports a missing or stale login session.
func NewNotLoginError() *AppError {
	return &AppError{Code: CodeNotLogin, Message: "not logged in"}
}

// NewNoAuthError reports that the bound user may not perform the operation.
func NewNoAuthError() *AppError {
	return &AppError{Code: CodeNoAuth, Message: "no permission"}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

// NewOperationError reports an operation that could not be completed.
func NewOperationError(message string, err error) *AppError {
	return &AppError{Code: CodeOperation, Message: message, Err: err}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeSystem,
		Message: "Internal server error",
		Err:     err,
	}
}

// HasCode reports whether err is an AppError of the given kind.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError converts any error into an AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}
