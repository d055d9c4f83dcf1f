package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the pipeline error taxonomy.
var (
	// ErrProviderUnavailable indicates a provider was skipped because its
	// circuit breaker is open. Recovered locally; the run proceeds with the
	// remaining providers.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTransient indicates a retryable provider failure (network
	// error, 5xx, 429). Surfaced only after retries are exhausted, at which
	// point it is treated as ErrProviderUnavailable for the rest of the run.
	ErrProviderTransient = errors.New("provider transient error")

	// ErrMalformedResponse indicates a single provider item could not be
	// parsed. Per-record: logged and skipped, never aborts the adapter call.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrNeuralUnavailable indicates the neural reranker could not score a
	// batch. Triggers the lexical fallback tier, never a user-visible failure.
	ErrNeuralUnavailable = errors.New("neural inference unavailable")

	// ErrInvalidQuery indicates the request failed validation. Surfaced to
	// the caller as a 4xx before any provider call is made.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrAllProvidersFailed indicates that every requested provider failed,
	// the only provider-side condition that fails a run outright.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrRateLimited indicates that an outbound request was rejected with
	// 429. Always transient; the retry policy honors Retry-After when the
	// provider sends it.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidQuery
}

// ProviderError provides details about a failed provider call.
type ProviderError struct {
	Provider   SourceType
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// CircuitOpenError is returned when a provider's breaker rejects a call
// without attempting I/O.
type CircuitOpenError struct {
	Provider  SourceType
	RetryAt   time.Time
	LastError string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s until %s", e.Provider, e.RetryAt.Format(time.RFC3339))
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *CircuitOpenError) Unwrap() error {
	return ErrProviderUnavailable
}

// MalformedItemError describes a single unparseable item within an otherwise
// valid provider response.
type MalformedItemError struct {
	Provider SourceType
	Index    int
	Reason   string
}

// Error implements the error interface.
func (e *MalformedItemError) Error() string {
	return fmt.Sprintf("%s returned malformed item %d: %s", e.Provider, e.Index, e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *MalformedItemError) Unwrap() error {
	return ErrMalformedResponse
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider SourceType, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// IsTransient reports whether err should be retried by the resilience layer.
// Timeouts are treated identically to transient failures.
func IsTransient(err error) bool {
	if errors.Is(err, ErrProviderTransient) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode == 429 || (pe.StatusCode >= 500 && pe.StatusCode < 600) || pe.StatusCode == 0
	}
	return false
}
