package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested citation was not found.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity indicates a storage integrity violation (duplicate key,
	// foreign key, or check constraint).
	ErrIntegrity = errors.New("integrity violation")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IntegrityError provides details about a storage integrity violation.
type IntegrityError struct {
	Table      string
	Constraint string
	Code       string
	Cause      error
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on %s (constraint %q, code %s): %v",
		e.Table, e.Constraint, e.Code, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewIntegrityError creates a new IntegrityError.
func NewIntegrityError(table, constraint, code string, cause error) *IntegrityError {
	return &IntegrityError{
		Table:      table,
		Constraint: constraint,
		Code:       code,
		Cause:      cause,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
