// Package retry provides retry logic with exponential backoff for resilient LLM calls.
package retry

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"devopsteam/pkg/agent/llmerrors"
	"devopsteam/pkg/agent/middleware/resilience/circuit"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial delay before first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// DefaultConfig provides reasonable defaults for retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default error classifier that determines retry behavior.
// It takes the blocklist approach: an error is retried unless it is provably
// non-retryable (caller cancellation, open circuit, auth or bad request).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Never retry caller cancellation. DeadlineExceeded stays retryable:
	// per-request timeouts wrap it while the parent context is still valid.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Never retry circuit breaker errors - the breaker owns recovery timing
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return false
	}

	// Providers classify their errors; trust the taxonomy when present
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	// Unclassified errors: refuse the patterns another attempt cannot fix
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key") {
		return false
	}
	if strings.Contains(errStr, "400") || strings.Contains(errStr, "404") {
		return false
	}

	// Everything else is worth another attempt
	return true
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// BudgetFor returns the maximum number of attempts allowed for err.
// Classified errors carry per-type budgets (rate limits tolerate more
// attempts than generic transport hiccups); everything else gets the
// policy-wide default.
func (p *Policy) BudgetFor(err error) int {
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		// MaxRetries counts retries; the budget includes the initial attempt
		return llmErr.GetRetryConfig().MaxRetries + 1
	}
	return p.Config.MaxAttempts
}

// CalculateDelay computes the policy-default delay for the given attempt number.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	return p.backoff(p.Config.InitialDelay, p.Config.MaxDelay, attempt)
}

// DelayFor computes the delay before the given attempt, using the error
// type's backoff window when the error is classified.
func (p *Policy) DelayFor(err error, attempt int) time.Duration {
	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		cfg := llmErr.GetRetryConfig()
		if cfg.InitialDelay > 0 {
			return p.backoff(cfg.InitialDelay, cfg.MaxDelay, attempt)
		}
	}
	return p.CalculateDelay(attempt)
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// backoff computes an exponential delay for attempt within the given window.
func (p *Policy) backoff(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(initial) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))

	// Cap at maximum delay
	if delay > maxDelay {
		delay = maxDelay
	}

	// Add jitter if enabled
	if p.Config.Jitter && delay > 0 {
		jitterFactor := float64(time.Now().UnixNano()%2*2 - 1) // -1 or +1
		jitter := time.Duration(float64(delay) * 0.1 * jitterFactor)
		delay += jitter
		if delay < 0 {
			delay = initial
		}
	}

	return delay
}
