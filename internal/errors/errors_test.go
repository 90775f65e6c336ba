package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestFortunateError_Error(t *testing.T) {
	err := NewInvalidIndex("n must be positive")
	expected := "[VALIDATION:INVALID_INDEX] n must be positive"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestFortunateError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("negative rounds")
	err := NewOracleFailure("primality test failed", cause)
	expected := "[ORACLE:ORACLE_FAILURE] primality test failed: negative rounds"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestFortunateError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewWorkerLost("worker panicked", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestFortunateError_Is(t *testing.T) {
	err1 := NewInvalidIndex("n=0")
	err2 := NewInvalidIndex("n=200000")
	err3 := NewValidationError(CodeInvalidConfig, "bad tolerance")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}

	wrapped := fmt.Errorf("search: %w", err1)
	if !errors.Is(wrapped, New(ErrCategoryValidation, CodeInvalidIndex, "")) {
		t.Error("wrapped error should still match its sentinel")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryWorker, CodeWorkerLost, true},
		{ErrCategoryWorker, CodeRetriesExhausted, false},
		{ErrCategoryOracle, CodeOracleFailure, false},
		{ErrCategoryValidation, CodeInvalidIndex, false},
		{ErrCategorySearch, CodeSearchCancelled, false},
		{ErrCategoryLedger, CodeResultNotFound, false},
		{ErrCategoryStorage, CodeUploadFailed, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}

	if IsRetryable(fmt.Errorf("plain error")) {
		t.Error("plain errors are never retryable")
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := NewLedgerError(CodeResultNotFound, "no entry for n=7", nil)
	if GetCategory(err) != ErrCategoryLedger {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryLedger)
	}
	if GetCode(err) != CodeResultNotFound {
		t.Errorf("got %q, want %q", GetCode(err), CodeResultNotFound)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-FortunateError should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-FortunateError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := NewInvalidIndex("out of range")
	detailed := err.WithDetails(map[string]interface{}{"n": 0})

	if detailed.Details["n"] != 0 {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}
