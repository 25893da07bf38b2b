// Package exception provides the error taxonomy of the sync service.
// Every failure that crosses a component boundary is a *BatchError whose Kind
// is one of the sentinel errors below, so callers classify with errors.Is.
package exception

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds. A BatchError matches its kind through errors.Is.
var (
	// ErrConnectivity indicates a store or endpoint could not be reached.
	ErrConnectivity = errors.New("ConnectivityError")
	// ErrQuery indicates a read failed after the connection was established.
	ErrQuery = errors.New("QueryError")
	// ErrTransaction indicates a begin, commit or rollback failure.
	ErrTransaction = errors.New("TransactionError")
	// ErrBatchWrite indicates that the insert of one batch failed.
	ErrBatchWrite = errors.New("BatchWriteError")
	// ErrValidation indicates missing or invalid identifying input.
	ErrValidation = errors.New("ValidationError")
	// ErrNotFound indicates an unknown run or execution.
	ErrNotFound = errors.New("NotFoundError")
	// ErrTimeout indicates that polling exceeded its maximum duration.
	ErrTimeout = errors.New("TimeoutError")
	// ErrOptimisticLockingFailure indicates a concurrent writer changed the record first.
	ErrOptimisticLockingFailure = errors.New("OptimisticLockingFailureException")
	// ErrDispatch indicates the external process endpoint rejected or failed a launch.
	ErrDispatch = errors.New("DispatchError")
)

// BatchError is the error type returned by the sync components.
type BatchError struct {
	// Module is the component where the error occurred (e.g., "reader", "writer", "flow").
	Module string
	// Message is a concise, user-visible description.
	Message string
	// Kind is one of the sentinel errors of this package.
	Kind error
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
}

// NewBatchError creates a new BatchError.
func NewBatchError(module string, kind error, message string, originalErr error) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		Kind:        kind,
		OriginalErr: originalErr,
	}
}

// NewBatchErrorf creates a BatchError with a formatted message.
// If the last argument is an error it becomes OriginalErr and is not used for formatting.
func NewBatchErrorf(module string, kind error, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return NewBatchError(module, kind, fmt.Sprintf(format, a...), originalErr)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	kind := "Error"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Module, kind, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Module, kind, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.OriginalErr != nil {
		errs = append(errs, e.OriginalErr)
	}
	return errs
}

// Validation is a shorthand for a ValidationError.
func Validation(module, format string, a ...interface{}) *BatchError {
	return NewBatchErrorf(module, ErrValidation, format, a...)
}

// NotFound is a shorthand for a NotFoundError.
func NotFound(module, format string, a ...interface{}) *BatchError {
	return NewBatchErrorf(module, ErrNotFound, format, a...)
}

// NewOptimisticLockingFailureException creates the error returned when a versioned write affected no rows.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, ErrOptimisticLockingFailure, message, originalErr)
}

// IsOptimisticLockingFailure reports whether err is an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// KindOf returns the sentinel kind of err, or nil when err is not classified.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation, ErrNotFound, ErrConnectivity, ErrQuery, ErrTransaction,
		ErrBatchWrite, ErrTimeout, ErrOptimisticLockingFailure, ErrDispatch,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsTemporary reports whether err is worth retrying on the next poll or attempt.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectivity) || errors.Is(err, ErrOptimisticLockingFailure) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "bad connection") ||
		strings.Contains(errStr, "EOF")
}

// ExtractErrorMessage returns the user-facing message of err.
// For BatchError it is the Message field followed by the cause.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		if be.OriginalErr != nil {
			return fmt.Sprintf("%s: %v", be.Message, be.OriginalErr)
		}
		return be.Message
	}
	return err.Error()
}
