package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devopsteam/pkg/agent/llmerrors"
	"devopsteam/pkg/agent/middleware/resilience/circuit"
)

func noJitterPolicy(initial, maxDelay time.Duration) *Policy {
	return NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  initial,
		MaxDelay:      maxDelay,
		BackoffFactor: 2.0,
	}, nil)
}

func TestShouldRetryClassifier(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		retry bool
	}{
		{"nil error", nil, false},
		{"caller cancellation", context.Canceled, false},
		{"wrapped cancellation", fmt.Errorf("call failed: %w", context.Canceled), false},
		// Per-request HTTP timeouts wrap DeadlineExceeded while the parent
		// context is still valid, so deadlines stay retryable.
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("http call failed: %w", context.DeadlineExceeded), true},
		// The breaker owns recovery timing
		{"open circuit", &circuit.Error{State: circuit.Open}, false},
		{"auth", &llmerrors.Error{Type: llmerrors.ErrorTypeAuth, Message: "invalid api key"}, false},
		{"bad prompt", &llmerrors.Error{Type: llmerrors.ErrorTypeBadPrompt, Message: "prompt too long"}, false},
		{"already exhausted", &llmerrors.Error{Type: llmerrors.ErrorTypeServiceUnavailable}, false},
		{"wrapped auth", fmt.Errorf("llm call failed: %w",
			&llmerrors.Error{Type: llmerrors.ErrorTypeAuth}), false},
		{"rate limit", &llmerrors.Error{Type: llmerrors.ErrorTypeRateLimit}, true},
		{"unknown classified", &llmerrors.Error{Type: llmerrors.ErrorTypeUnknown}, true},
		// Unclassified strings: blocklist the patterns another attempt cannot fix
		{"401 text", errors.New("HTTP 401 Unauthorized"), false},
		{"403 text", errors.New("403 Forbidden"), false},
		{"bad key text", errors.New("invalid api key provided"), false},
		{"400 text", errors.New("HTTP 400 Bad Request"), false},
		{"404 text", errors.New("404 Not Found"), false},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"plain EOF", errors.New("EOF"), true},
		{"anything else", errors.New("something completely unexpected"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retry, ShouldRetry(tc.err))
		})
	}
}

func TestShouldRetryTimeoutInsideClassifiedError(t *testing.T) {
	// A per-request timeout surfaced through the provider taxonomy still
	// deserves another attempt.
	err := &llmerrors.Error{
		Type:    llmerrors.ErrorTypeUnknown,
		Err:     fmt.Errorf("http request failed: %w", context.DeadlineExceeded),
		Message: "request timed out",
	}
	assert.True(t, ShouldRetry(err))
}

func TestNewPolicyClassifierDefaults(t *testing.T) {
	p := NewPolicy(DefaultConfig, nil)
	require.NotNil(t, p.Classifier)
	assert.False(t, p.ShouldRetry(nil))

	alwaysRetry := NewPolicy(DefaultConfig, func(err error) bool { return err != nil })
	assert.True(t, alwaysRetry.ShouldRetry(errors.New("anything")))
}

func TestBudgetFor(t *testing.T) {
	p := NewPolicy(DefaultConfig, nil)

	// Rate limits carry the largest budget in the taxonomy; the budget
	// includes the initial attempt.
	want := llmerrors.DefaultRetryConfigs[llmerrors.ErrorTypeRateLimit].MaxRetries + 1
	assert.Equal(t, want, p.BudgetFor(&llmerrors.Error{Type: llmerrors.ErrorTypeRateLimit}))

	// Unknown classified errors get exactly one retry
	assert.Equal(t, 2, p.BudgetFor(&llmerrors.Error{Type: llmerrors.ErrorTypeUnknown}))

	// Unclassified errors fall back to the policy-wide default
	assert.Equal(t, DefaultConfig.MaxAttempts, p.BudgetFor(errors.New("plain error")))
}

func TestCalculateDelayExponentialBackoff(t *testing.T) {
	p := noJitterPolicy(time.Second, 30*time.Second)

	assert.Equal(t, time.Duration(0), p.CalculateDelay(1), "no delay before the first attempt")
	assert.Equal(t, time.Second, p.CalculateDelay(2))
	assert.Equal(t, 2*time.Second, p.CalculateDelay(3))
	assert.Equal(t, 4*time.Second, p.CalculateDelay(4))
}

func TestCalculateDelayCapsAtMax(t *testing.T) {
	p := noJitterPolicy(time.Second, 5*time.Second)
	// Attempt 10 would be 256s uncapped
	assert.Equal(t, 5*time.Second, p.CalculateDelay(10))
}

func TestCalculateDelayJitterStaysNearBase(t *testing.T) {
	p := NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}, nil)

	delay := p.CalculateDelay(2)
	assert.InDelta(t, float64(time.Second), float64(delay), float64(time.Second)*0.1)
}

func TestDelayForUsesErrorTypeWindow(t *testing.T) {
	p := noJitterPolicy(time.Second, 30*time.Second)

	// Empty-response errors back off from their own 2s initial delay
	emptyResp := &llmerrors.Error{Type: llmerrors.ErrorTypeEmptyResponse}
	assert.Equal(t, 2*time.Second, p.DelayFor(emptyResp, 2))

	// Unclassified errors use the policy window
	assert.Equal(t, time.Second, p.DelayFor(errors.New("plain error"), 2))
}
