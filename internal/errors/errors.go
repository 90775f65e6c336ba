// Package errors provides structured error types for the Fortunate search.
// Every error carries a category, code, message, and retryable flag so the
// coordinator and the API surfaces can decide how to react without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the component that raised them.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryOracle     ErrorCategory = "ORACLE"
	ErrCategoryWorker     ErrorCategory = "WORKER"
	ErrCategorySearch     ErrorCategory = "SEARCH"
	ErrCategoryLedger     ErrorCategory = "LEDGER"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidIndex  = "INVALID_INDEX"
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeInvalidTask   = "INVALID_TASK"

	// Oracle codes
	CodeOracleFailure = "ORACLE_FAILURE"

	// Worker codes
	CodeWorkerLost       = "WORKER_LOST"
	CodeRetriesExhausted = "RETRIES_EXHAUSTED"

	// Search codes
	CodeSearchCancelled = "SEARCH_CANCELLED"
	CodeSearchStalled   = "SEARCH_STALLED"

	// Ledger codes
	CodeResultNotFound    = "RESULT_NOT_FOUND"
	CodeLedgerWriteFailed = "LEDGER_WRITE_FAILED"
	CodeTraceCorrupt      = "TRACE_CORRUPT"

	// Storage codes
	CodeUploadFailed = "UPLOAD_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// FortunateError is the structured error type used throughout the module.
type FortunateError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *FortunateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *FortunateError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *FortunateError) Is(target error) bool {
	var t *FortunateError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new FortunateError.
func New(category ErrorCategory, code, message string) *FortunateError {
	return &FortunateError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new FortunateError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *FortunateError {
	return &FortunateError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *FortunateError) WithDetails(details map[string]interface{}) *FortunateError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var fe *FortunateError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a FortunateError.
func GetCategory(err error) ErrorCategory {
	var fe *FortunateError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a FortunateError.
func GetCode(err error) string {
	var fe *FortunateError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// isRetryable reports whether a failure can be recovered by re-running the
// same unit of work. Only a lost worker qualifies: the range it held is
// simply dispatched again.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryWorker && code == CodeWorkerLost
}

// Convenience constructors for common errors.

func NewInvalidIndex(message string) *FortunateError {
	return New(ErrCategoryValidation, CodeInvalidIndex, message)
}

func NewValidationError(code, message string) *FortunateError {
	return New(ErrCategoryValidation, code, message)
}

func NewOracleFailure(message string, cause error) *FortunateError {
	return Wrap(ErrCategoryOracle, CodeOracleFailure, message, cause)
}

func NewWorkerLost(message string, cause error) *FortunateError {
	return Wrap(ErrCategoryWorker, CodeWorkerLost, message, cause)
}

func NewSearchError(code, message string, cause error) *FortunateError {
	return Wrap(ErrCategorySearch, code, message, cause)
}

func NewLedgerError(code, message string, cause error) *FortunateError {
	return Wrap(ErrCategoryLedger, code, message, cause)
}

func NewStorageError(code, message string, cause error) *FortunateError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *FortunateError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
