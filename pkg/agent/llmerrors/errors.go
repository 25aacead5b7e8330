// Package llmerrors classifies inference API failures so the retry and
// circuit breaker middleware can decide what is worth another attempt.
package llmerrors

import (
	"fmt"
	"time"
)

// ErrorType buckets an inference failure for retry policy lookup.
type ErrorType int8

const (
	// ErrorTypeRateLimit covers 429s and quota exhaustion.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient covers 5xx, EOF, connection resets, and timeouts.
	ErrorTypeTransient
	// ErrorTypeEmptyResponse covers HTTP 200 replies carrying no content.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth covers 401/403 and bad API keys. Never retried.
	ErrorTypeAuth
	// ErrorTypeBadPrompt covers malformed requests (too long, policy). Never retried.
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is the default for anything unclassified.
	ErrorTypeUnknown
	// ErrorTypeServiceUnavailable marks a provider that stayed down through a
	// full retry budget. Degradable stages skip themselves on it.
	ErrorTypeServiceUnavailable
)

func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// RetryConfig is the exponential backoff budget for one error type.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfigs maps each error type to its backoff budget. Rate limits
// get the longest leash; auth and bad prompts get none.
//
//nolint:gochecknoglobals // Package-level policy defaults
var DefaultRetryConfigs = map[ErrorType]RetryConfig{
	ErrorTypeRateLimit:     {MaxRetries: 6, InitialDelay: time.Second, MaxDelay: 60 * time.Second, BackoffFactor: 2.0, Jitter: true},
	ErrorTypeTransient:     {MaxRetries: 4, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 2.0, Jitter: true},
	ErrorTypeEmptyResponse: {MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2.0, Jitter: true},
	ErrorTypeAuth:          {BackoffFactor: 1.0},
	ErrorTypeBadPrompt:     {BackoffFactor: 1.0},
	ErrorTypeUnknown:       {MaxRetries: 1, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2.0, Jitter: true},
	ErrorTypeServiceUnavailable: {BackoffFactor: 1.0},
}

// Error is a classified inference failure.
type Error struct {
	Err        error     // underlying cause, if any
	Message    string    // human-readable description
	Type       ErrorType // classification driving the retry policy
	StatusCode int       // HTTP status when the provider returned one
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt can help. Everything is
// retryable unless the type says otherwise.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

// GetRetryConfig returns the backoff budget for this error's type.
func (e *Error) GetRetryConfig() RetryConfig {
	if config, exists := DefaultRetryConfigs[e.Type]; exists {
		return config
	}
	return DefaultRetryConfigs[ErrorTypeUnknown]
}

// NewError creates a classified error from a message.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithStatus creates a classified error carrying the HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// NewServiceUnavailableError marks a provider as down after a retry budget
// was exhausted on transient failures.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d retry attempts", attempts),
	}
}
