package errors

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestCatalogError_Error(t *testing.T) {
	err := New(ErrCategoryConnector, CodeUnsupportedOperation, "savePartitions is not supported")
	expected := "[CONNECTOR:UNSUPPORTED_OPERATION] savePartitions is not supported"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestCatalogError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryConnector, CodeBackendFailure, "list partitions", cause)
	expected := "[CONNECTOR:BACKEND_FAILURE] list partitions: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestCatalogError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewSyntaxError("dt >", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestCatalogError_Is(t *testing.T) {
	err1 := NewUnsupportedOperation("getPartitions")
	err2 := NewUnsupportedOperation("deletePartitions")
	err3 := New(ErrCategoryConnector, CodeTimeout, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
	if !IsUnsupported(fmt.Errorf("wrapped: %w", err1)) {
		t.Error("IsUnsupported should see through wrapping")
	}
	if !errors.Is(NewSyntaxError("x", nil), ErrSyntax) {
		t.Error("syntax errors should match ErrSyntax")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryConnector, CodeTimeout, true},
		{ErrCategoryConnector, CodeBackendFailure, true},
		{ErrCategoryConnector, CodeUnsupportedOperation, false},
		{ErrCategoryConnector, CodePartitionExists, false},
		{ErrCategoryStorage, CodeListFailed, true},
		{ErrCategoryStorage, CodeDeleteFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryFilter, CodeSyntaxError, false},
		{ErrCategoryValidation, CodeCatalogNotFound, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
	if IsRetryable(fmt.Errorf("plain error")) {
		t.Error("plain errors are not retryable")
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", NewValidationError(CodeCatalogNotFound, "no catalog prod"))
	if GetCategory(err) != ErrCategoryValidation {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryValidation)
	}
	if GetCode(err) != CodeCatalogNotFound {
		t.Errorf("got %q, want %q", GetCode(err), CodeCatalogNotFound)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" || GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-CatalogError should return empty category and code")
	}
}

func TestWithDetails(t *testing.T) {
	base := NewValidationError(CodeInvalidRequest, "bad")
	detailed := base.WithDetails(map[string]interface{}{"field": "limit"})
	if base.Details != nil {
		t.Error("WithDetails must not modify the receiver")
	}
	if detailed.Details["field"] != "limit" {
		t.Errorf("unexpected details: %v", detailed.Details)
	}
}

func TestBatchError(t *testing.T) {
	batch := NewBatchError("deletePartitions")
	if batch.ErrorOrNil() != nil {
		t.Fatal("empty batch should be nil")
	}

	cause := NewStorageError(CodeDeleteFailed, "delete object", fmt.Errorf("503"))
	batch.Add("c/d/t/dt=1", cause)
	batch.Add("c/d/t/dt=2", nil)
	batch.Add("c/d/t/dt=3", fmt.Errorf("not found"))

	if batch.Len() != 2 {
		t.Fatalf("expected 2 failures, got %d", batch.Len())
	}
	failed := batch.Failed()
	if failed[0] != "c/d/t/dt=1" || failed[1] != "c/d/t/dt=3" {
		t.Errorf("unexpected failed names: %v", failed)
	}

	err := batch.ErrorOrNil()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, cause) {
		t.Error("individual failures should be reachable through errors.Is")
	}
	if !IsRetryable(err) {
		t.Error("a retryable member should be found through errors.As")
	}
	if !strings.Contains(err.Error(), "2 item(s) failed") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	be, ok := AsBatchError(fmt.Errorf("wrapped: %w", err))
	if !ok || be != batch {
		t.Error("AsBatchError should unwrap to the batch")
	}
}

func TestBatchError_MergeConcurrent(t *testing.T) {
	total := NewBatchError("deletePartitions")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			part := NewBatchError("deletePartitions")
			part.Add(fmt.Sprintf("p%d", i), fmt.Errorf("failed %d", i))
			total.Merge(part)
		}(i)
	}
	wg.Wait()

	if total.Len() != 8 {
		t.Errorf("expected 8 failures, got %d", total.Len())
	}
	total.Merge(nil)
	if total.Len() != 8 {
		t.Error("merging nil must be a no-op")
	}
}
