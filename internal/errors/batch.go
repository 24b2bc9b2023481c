package errors

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Failure is one failed item of a batch operation.
type Failure struct {
	Name string
	Err  error
}

// BatchError reports a partially failed batch. Items that are not listed
// succeeded. It is safe for concurrent use.
type BatchError struct {
	Op string

	mu       sync.Mutex
	failures []Failure
	merr     *multierror.Error
}

// NewBatchError returns an empty batch error for op.
func NewBatchError(op string) *BatchError {
	return &BatchError{Op: op}
}

// Add records the failure of one named item. A nil err is ignored.
func (b *BatchError) Add(name string, err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, Failure{Name: name, Err: err})
	b.merr = multierror.Append(b.merr, fmt.Errorf("%s: %w", name, err))
}

// Merge adds every failure of other. A nil other is ignored.
func (b *BatchError) Merge(other *BatchError) {
	if other == nil {
		return
	}
	for _, f := range other.Failures() {
		b.Add(f.Name, f.Err)
	}
}

// Failures returns a copy of the recorded failures in insertion order.
func (b *BatchError) Failures() []Failure {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Failure, len(b.failures))
	copy(out, b.failures)
	return out
}

// Failed returns the names of the failed items.
func (b *BatchError) Failed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.failures))
	for i, f := range b.failures {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of failures.
func (b *BatchError) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.failures)
}

// ErrorOrNil returns b if anything failed and nil otherwise.
func (b *BatchError) ErrorOrNil() error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	return b
}

func (b *BatchError) Error() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.merr == nil {
		return b.Op + ": no failures"
	}
	lines := make([]string, len(b.merr.Errors))
	for i, err := range b.merr.Errors {
		lines[i] = "\t* " + err.Error()
	}
	return fmt.Sprintf("%s: %d item(s) failed:\n%s", b.Op, len(lines), strings.Join(lines, "\n"))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (b *BatchError) Unwrap() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.merr == nil {
		return nil
	}
	return b.merr.WrappedErrors()
}

// AsBatchError extracts a BatchError from err's chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
