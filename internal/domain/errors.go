package domain

import "fmt"

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrInvalidCriteria indicates report criteria outside the supported range.
type ErrInvalidCriteria struct {
	Field  string
	Reason string
}

func (e *ErrInvalidCriteria) Error() string {
	return fmt.Sprintf("invalid report criteria '%s': %s", e.Field, e.Reason)
}

// ErrStoreUnavailable indicates the bill store could not be reached.
type ErrStoreUnavailable struct {
	Store string
	Err   error
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("bill store unavailable [%s]: %v", e.Store, e.Err)
}

func (e *ErrStoreUnavailable) Unwrap() error {
	return e.Err
}

// ErrUpstream indicates the text-generation provider failed
// (rate limit, malformed response, network failure).
type ErrUpstream struct {
	Provider string
	Status   int
	Err      error
}

func (e *ErrUpstream) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream error [%s] status=%d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("upstream error [%s]: %v", e.Provider, e.Err)
}

func (e *ErrUpstream) Unwrap() error {
	return e.Err
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists (e.g. e-mail already registered).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
