// Package shared contains common domain types, errors, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// Record-reconciliation errors
	ErrMalformedRecord     = errors.New("malformed record")
	ErrUnrecognizedOutcome = errors.New("unrecognized outcome")
	ErrUnmatchedIdentity   = errors.New("unmatched identity")
	ErrMissingResults      = errors.New("no results have been read")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrAlreadyProcessed = errors.New("already processed")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attempt", "identity", "participant"
	Op      string // Operation that failed, e.g., "Parse", "Match"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// External service errors. The domain packages define their own sentinels
// on top of the base kinds above; the Canvas client shares one instance-wide
// set because every call site maps HTTP responses the same way.
var (
	ErrCanvasUnavailable     = NewDomainError("canvas", "Request", ErrServiceUnavailable, "Canvas API is unavailable")
	ErrCanvasRateLimited     = NewDomainError("canvas", "Request", ErrRateLimited, "Canvas API rate limit exceeded")
	ErrCanvasTimeout         = NewDomainError("canvas", "Request", ErrTimeout, "Canvas API request timeout")
	ErrCanvasInvalidResponse = NewDomainError("canvas", "Parse", ErrInvalidFormat, "unexpected response from Canvas API")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsMalformedRecord checks if the error is a malformed-record parse error.
// These are logged and skipped; they never abort a batch run.
func IsMalformedRecord(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}

// IsUnrecognizedOutcome checks if the error is an unrecognized outcome value.
// These are fatal to the single record that carried the value.
func IsUnrecognizedOutcome(err error) bool {
	return errors.Is(err, ErrUnrecognizedOutcome)
}

// IsUnmatchedIdentity checks if the error is an identity-reconciliation miss.
func IsUnmatchedIdentity(err error) bool {
	return errors.Is(err, ErrUnmatchedIdentity)
}

// IsMissingResults checks if aggregation ran before any results were loaded.
func IsMissingResults(err error) bool {
	return errors.Is(err, ErrMissingResults)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
