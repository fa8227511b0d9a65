// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested entity was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrNoPermission indicates the user may not act on the entity.
	ErrNoPermission = errors.New("no permission")

	// ErrSessionExpired indicates a conversation session passed its deadline.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoActiveFlow indicates a flow operation was attempted without an active flow.
	ErrNoActiveFlow = errors.New("no active flow")

	// ErrGroupFull indicates a meetup group has reached its participant limit.
	ErrGroupFull = errors.New("group is full")

	// ErrAlreadyMember indicates the user already joined (or is waitlisted for) a group.
	ErrAlreadyMember = errors.New("already a member")

	// ErrRateLimitExceeded indicates a rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates user-provided input failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderUnavailable indicates no AI provider is configured or reachable.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ExternalError represents a failure from a third-party API with context.
type ExternalError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ExternalError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status=%d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// NewExternalError creates a new external service error.
func NewExternalError(service string, statusCode int, err error) *ExternalError {
	return &ExternalError{
		Service:    service,
		StatusCode: statusCode,
		Err:        err,
	}
}
