// Package circuit provides circuit breaker functionality for resilient LLM calls.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states for managing provider failure patterns.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests until the cooldown passes
	HalfOpen              // Probing whether the provider recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before the circuit opens
	SuccessThreshold int           `json:"success_threshold"` // Successes in half-open needed to close again
	Timeout          time.Duration `json:"timeout"`           // Cooldown before an open circuit probes half-open
}

// DefaultConfig provides reasonable defaults for riding out provider outages.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 3,
	Timeout:          30 * time.Second,
}

// Error represents an error when circuit is open.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker defines the interface for circuit breaker implementations.
type Breaker interface {
	// Allow checks if a request should be allowed based on current state.
	Allow() bool

	// Record records the result (success/failure) of a request.
	Record(success bool)

	// GetState returns the current circuit breaker state.
	GetState() State

	// Reset manually resets the circuit breaker to closed state.
	Reset()
}

// breaker implements the Breaker interface with state management.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type breaker struct {
	config    Config
	mu        sync.RWMutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed circuit breaker with the given configuration.
func New(config Config) Breaker {
	return &breaker{
		config: config,
		state:  Closed,
	}
}

// Allow checks if a request should be allowed based on current state.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true

	case Open:
		if time.Since(b.openedAt) >= b.config.Timeout {
			// Cooldown elapsed, let a probe through
			b.state = HalfOpen
			b.successes = 0
			return true
		}
		return false

	case HalfOpen:
		// Always allow in half-open (rate limiting handles concurrency)
		return true

	default:
		return false
	}
}

// Record records the success or failure of a request.
func (b *breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
		return
	}
	b.onFailure()
}

// GetState returns the current circuit breaker state.
func (b *breaker) GetState() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reset manually resets the circuit breaker to closed state.
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
	b.successes = 0
}

// onSuccess handles a successful request. Caller holds the lock.
func (b *breaker) onSuccess() {
	switch b.state {
	case Closed:
		// Failures must be consecutive to trip the breaker
		b.failures = 0

	case HalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}

	case Open:
		// A straggler from before the circuit opened; ignore
	}
}

// onFailure handles a failed request. Caller holds the lock.
func (b *breaker) onFailure() {
	b.failures++

	switch b.state {
	case Closed:
		if b.failures >= b.config.FailureThreshold {
			b.trip()
		}

	case HalfOpen:
		// Any failure during probing immediately reopens the circuit
		b.trip()

	case Open:
	}
}

// trip opens the circuit and restarts the cooldown clock. Caller holds the lock.
func (b *breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.successes = 0
}

// Registry hands out one breaker per provider so an outage at one provider
// does not reject requests bound for the others.
type Registry struct {
	mu       sync.Mutex
	config   Config
	breakers map[string]Breaker
}

// NewRegistry creates an empty registry; breakers are created on first use.
func NewRegistry(config Config) *Registry {
	return &Registry{
		config:   config,
		breakers: make(map[string]Breaker),
	}
}

// For returns the breaker for a provider, creating it on first request.
func (r *Registry) For(provider string) Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[provider]
	if !ok {
		b = New(r.config)
		r.breakers[provider] = b
	}
	return b
}

// States returns a snapshot of every known provider's current state.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]State, len(r.breakers))
	for provider, b := range r.breakers {
		states[provider] = b.GetState()
	}
	return states
}
