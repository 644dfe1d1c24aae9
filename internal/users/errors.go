package users

import (
	"errors"
	"fmt"
)

// StorageError represents errors related to storage operations
type StorageError struct {
	Type      string
	Operation string
	Resource  string
	Message   string
	Cause     error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage error [%s] during %s on %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Resource, e.Message, e.Cause)
	}
	return fmt.Sprintf("storage error [%s] during %s on %s: %s",
		e.Type, e.Operation, e.Resource, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is matches any StorageError of the same Type, so callers can test against the sentinels below.
func (e *StorageError) Is(target error) bool {
	var t *StorageError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// Storage error types
const (
	StorageErrorTypeConnectionFailed  = "connection_failed"
	StorageErrorTypeSchemaFailed      = "schema_failed"
	StorageErrorTypeDuplicateConflict = "duplicate_conflict"
	StorageErrorTypeQueryFailed       = "query_failed"
	StorageErrorTypeClosed            = "store_closed"
)

// Sentinels for errors.Is
var (
	ErrConnection        = &StorageError{Type: StorageErrorTypeConnectionFailed}
	ErrSchema            = &StorageError{Type: StorageErrorTypeSchemaFailed}
	ErrDuplicateConflict = &StorageError{Type: StorageErrorTypeDuplicateConflict}
	ErrQuery             = &StorageError{Type: StorageErrorTypeQueryFailed}
	ErrClosed            = &StorageError{Type: StorageErrorTypeClosed}
)

const resourceUsers = "users"

// NewConnectionError creates an error for storage connection failures
func NewConnectionError(cause error) *StorageError {
	return &StorageError{
		Type:      StorageErrorTypeConnectionFailed,
		Operation: "connect",
		Resource:  resourceUsers,
		Message:   "failed to connect to storage",
		Cause:     cause,
	}
}

// NewSchemaError creates an error for table creation failures
func NewSchemaError(cause error) *StorageError {
	return &StorageError{
		Type:      StorageErrorTypeSchemaFailed,
		Operation: "ensure_schema",
		Resource:  resourceUsers,
		Message:   "failed to create users table",
		Cause:     cause,
	}
}

// NewDuplicateConflictError creates an error for name or email uniqueness violations
func NewDuplicateConflictError(operation string, cause error) *StorageError {
	return &StorageError{
		Type:      StorageErrorTypeDuplicateConflict,
		Operation: operation,
		Resource:  resourceUsers,
		Message:   "duplicate name or email",
		Cause:     cause,
	}
}

// NewQueryError creates an error for storage query failures
func NewQueryError(operation string, cause error) *StorageError {
	return &StorageError{
		Type:      StorageErrorTypeQueryFailed,
		Operation: operation,
		Resource:  resourceUsers,
		Message:   "storage query failed",
		Cause:     cause,
	}
}

// NewClosedError creates an error for operations on a closed store
func NewClosedError(operation string) *StorageError {
	return &StorageError{
		Type:      StorageErrorTypeClosed,
		Operation: operation,
		Resource:  resourceUsers,
		Message:   "store is closed",
	}
}

// ValidationError represents errors in request validation
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error for field '%s' (value: %v): %s (caused by: %v)", e.Field, e.Value, e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
