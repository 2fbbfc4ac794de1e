package store

import (
	"errors"
	"fmt"
)

// StoreError represents errors that occur during backup store operations
type StoreError struct {
	Type    StoreErrorType         `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// StoreErrorType represents different types of store errors
type StoreErrorType string

const (
	StoreErrorTypeNotFound       StoreErrorType = "NOT_FOUND_ERROR"
	StoreErrorTypeLockContention StoreErrorType = "LOCK_CONTENTION_ERROR"
	StoreErrorTypeIO             StoreErrorType = "IO_ERROR"
	StoreErrorTypeDecode         StoreErrorType = "DECODE_ERROR"
	StoreErrorTypeCorruption     StoreErrorType = "ARCHIVE_CORRUPTION_ERROR"
	StoreErrorTypeValidation     StoreErrorType = "VALIDATION_ERROR"
	StoreErrorTypeConfiguration  StoreErrorType = "CONFIGURATION_ERROR"
)

// NewStoreError creates a new StoreError
func NewStoreError(errorType StoreErrorType, message string, cause error) *StoreError {
	return &StoreError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *StoreError) WithContext(key string, value interface{}) *StoreError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewNotFoundError(message string, cause error) *StoreError {
	return NewStoreError(StoreErrorTypeNotFound, message, cause)
}

func NewLockContentionError(message string, cause error) *StoreError {
	return NewStoreError(StoreErrorTypeLockContention, message, cause)
}

func NewIOError(message string, cause error) *StoreError {
	return NewStoreError(StoreErrorTypeIO, message, cause)
}

func NewDecodeError(message string, cause error) *StoreError {
	return NewStoreError(StoreErrorTypeDecode, message, cause)
}

func NewCorruptionError(message string, cause error) *StoreError {
	return NewStoreError(StoreErrorTypeCorruption, message, cause)
}

func NewValidationError(message string, cause error) *StoreError {
	return NewStoreError(StoreErrorTypeValidation, message, cause)
}

func NewConfigurationError(message string, cause error) *StoreError {
	return NewStoreError(StoreErrorTypeConfiguration, message, cause)
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Type == StoreErrorTypeLockContention
	}
	return false
}

// IsPermanent determines if an error is permanent and should not be retried
func IsPermanent(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		switch storeErr.Type {
		case StoreErrorTypeNotFound, StoreErrorTypeIO, StoreErrorTypeDecode,
			StoreErrorTypeCorruption, StoreErrorTypeValidation, StoreErrorTypeConfiguration:
			return true
		default:
			return false
		}
	}
	return false
}

// IsNotFound reports whether err is a not-found store error
func IsNotFound(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Type == StoreErrorTypeNotFound
	}
	return false
}
