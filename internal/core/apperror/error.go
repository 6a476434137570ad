// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal          = "INTERNAL_ERROR"
	CodeEngineUnavailable = "ENGINE_UNAVAILABLE"
	CodePartialWrite      = "PARTIAL_WRITE"

	// Validation errors (400)
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"

	// Authorization errors (403)
	CodeForbidden = "FORBIDDEN"

	// Not found (404)
	CodeNotFound       = "NOT_FOUND"
	CodeTenantNotFound = "TENANT_NOT_FOUND"

	// Conflict (409)
	CodeConflict               = "CONFLICT"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewTenantNotFound creates an unknown or inactive tenant error (404).
func NewTenantNotFound(tenantID string) *AppError {
	return &AppError{
		Code:       CodeTenantNotFound,
		Message:    "tenant not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"tenant": tenantID},
	}
}

// NewInsufficientStock creates a stock shortage error.
// It is a validation error: nothing has been written when it is returned.
func NewInsufficientStock(articleCode string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusBadRequest,
		Details: map[string]any{
			"article_code": articleCode,
			"requested":    requested,
			"available":    available,
		},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record is being modified by another request. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewEngineUnavailable creates a backend connectivity error (503).
func NewEngineUnavailable(engine string, err error) *AppError {
	return &AppError{
		Code:       CodeEngineUnavailable,
		Message:    "storage engine unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"engine": engine},
		Err:        err,
	}
}

// NewPartialWrite reports a write-phase failure after the header was committed.
// The already written rows are not cleaned up.
func NewPartialWrite(kind string, number int64, linesWritten int, err error) *AppError {
	return &AppError{
		Code:       CodePartialWrite,
		Message:    "document was partially written",
		HTTPStatus: http.StatusInternalServerError,
		Details: map[string]any{
			"kind":          kind,
			"number":        number,
			"lines_written": linesWritten,
		},
		Err: err,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsValidation reports validation-class errors, including stock shortages.
func IsValidation(err error) bool {
	return HasCode(err, CodeValidation) || HasCode(err, CodeInsufficientStock) || HasCode(err, CodeInvalidInput)
}

// IsConflict reports conflict-class errors.
func IsConflict(err error) bool {
	return HasCode(err, CodeConflict) || HasCode(err, CodeDuplicate) || HasCode(err, CodeConcurrentModification)
}

// IsPartialWrite checks if error is CodePartialWrite
func IsPartialWrite(err error) bool {
	return HasCode(err, CodePartialWrite)
}
