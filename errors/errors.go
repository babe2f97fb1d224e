// Package errors provides custom error types for the class-sync engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeRegistrationFailed    ErrorCode = "REGISTRATION_FAILED"
	ErrCodeSyncFailed            ErrorCode = "SYNC_FAILED"
	ErrCodeBatchSyncFailed       ErrorCode = "BATCH_SYNC_FAILED"
	ErrCodeAlignmentFailed       ErrorCode = "ALIGNMENT_FAILED"
	ErrCodeVersionCreationFailed ErrorCode = "VERSION_CREATION_FAILED"
	ErrCodeRollbackFailed        ErrorCode = "ROLLBACK_FAILED"
	ErrCodeSourceNotFound        ErrorCode = "SOURCE_NOT_FOUND"
	ErrCodeStorageFailure        ErrorCode = "STORAGE_FAILURE"
	ErrCodeValidationFailure     ErrorCode = "VALIDATION_FAILURE"
)

// Operation represents the engine operation during which an error occurred
type Operation string

const (
	OpRegister      Operation = "register"
	OpSync          Operation = "sync"
	OpBatchSync     Operation = "batch_sync"
	OpRollback      Operation = "rollback"
	OpAlign         Operation = "align"
	OpCreateVersion Operation = "create_version"
	OpDetect        Operation = "detect"
	OpResolve       Operation = "resolve"
	OpStore         Operation = "store"
	OpLoad          Operation = "load"
	OpFeed          Operation = "feed"
	OpClose         Operation = "close"
)

// SyncError represents an error that occurred during a synchronization
// engine operation.
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "state_store", "executor")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// New creates a new SyncError
func New(op Operation, code ErrorCode, err error) *SyncError {
	return &SyncError{
		Op:   op,
		Code: code,
		Err:  err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, code ErrorCode, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Code:      code,
		Component: component,
		Err:       err,
	}
}

// NewStorageError creates a new storage-related SyncError
func NewStorageError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a new validation-related SyncError
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code: ErrCodeValidationFailure,
		Op:   op,
		Err:  cause,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// CodeOf extracts the error code from an error chain.
// Returns an empty code when no SyncError is present.
func CodeOf(err error) ErrorCode {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code
	}
	return ""
}

// HasCode reports whether the error chain contains a SyncError with the
// given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
