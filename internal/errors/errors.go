// Package errors provides structured error types for the partition catalog.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across the dispatcher and connectors.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryFilter     ErrorCategory = "FILTER"
	ErrCategoryConnector  ErrorCategory = "CONNECTOR"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeInvalidPageToken     = "INVALID_PAGE_TOKEN"
	CodeInvalidQualifiedName = "INVALID_QUALIFIED_NAME"
	CodeCatalogNotFound      = "CATALOG_NOT_FOUND"
	CodeUnknownPartitionKey  = "UNKNOWN_PARTITION_KEY"

	// Filter codes
	CodeSyntaxError = "SYNTAX_ERROR"

	// Connector codes
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeTimeout              = "TIMEOUT"
	CodeBackendFailure       = "BACKEND_FAILURE"
	CodeTableNotFound        = "TABLE_NOT_FOUND"
	CodePartitionExists      = "PARTITION_EXISTS"
	CodePartitionNotFound    = "PARTITION_NOT_FOUND"

	// Storage codes
	CodeListFailed     = "LIST_FAILED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// CatalogError is the structured error type used throughout the system.
type CatalogError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *CatalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CatalogError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *CatalogError) Is(target error) bool {
	var t *CatalogError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new CatalogError.
func New(category ErrorCategory, code, message string) *CatalogError {
	return &CatalogError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new CatalogError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *CatalogError {
	return &CatalogError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *CatalogError) WithDetails(details map[string]interface{}) *CatalogError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a CatalogError.
func GetCategory(err error) ErrorCategory {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a CatalogError.
func GetCode(err error) string {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// isRetryable marks the failures a caller may reasonably retry. The catalog
// itself never retries.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryConnector && code == CodeTimeout:
		return true
	case category == ErrCategoryConnector && code == CodeBackendFailure:
		return true
	case category == ErrCategoryStorage && code == CodeListFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDeleteFailed:
		return true
	default:
		return false
	}
}

// Sentinels for errors.Is checks. Only category and code are compared.
var (
	ErrUnsupportedOperation = New(ErrCategoryConnector, CodeUnsupportedOperation, "unsupported operation")
	ErrSyntax               = New(ErrCategoryFilter, CodeSyntaxError, "syntax error")
	ErrCatalogNotFound      = New(ErrCategoryValidation, CodeCatalogNotFound, "catalog not found")
	ErrTimeout              = New(ErrCategoryConnector, CodeTimeout, "timeout")
)

// IsUnsupported reports whether err is an unsupported-operation error.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedOperation)
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *CatalogError {
	return New(ErrCategoryValidation, code, message)
}

// NewSyntaxError wraps a filter parse failure.
func NewSyntaxError(filter string, cause error) *CatalogError {
	return Wrap(ErrCategoryFilter, CodeSyntaxError, fmt.Sprintf("invalid filter %q", filter), cause)
}

// NewUnsupportedOperation reports that a connector does not implement op.
func NewUnsupportedOperation(op string) *CatalogError {
	return New(ErrCategoryConnector, CodeUnsupportedOperation, op+" is not supported by this connector")
}

func NewConnectorError(code, message string, cause error) *CatalogError {
	return Wrap(ErrCategoryConnector, code, message, cause)
}

func NewStorageError(code, message string, cause error) *CatalogError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *CatalogError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
