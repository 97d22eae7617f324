package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is refusing calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen refuses calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits a single probe call.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker sheds calls to a collaborator after repeated failures,
// so a down model or embedder fails queries fast instead of queueing
// them behind timeouts. After resetTimeout a single probe is admitted;
// its outcome closes or re-opens the circuit.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets the consecutive-failure count that opens the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithResetTimeout sets how long the circuit stays open before probing.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetTimeout = d
		}
	}
}

// NewCircuitBreaker creates a closed breaker named for its collaborator.
// Defaults: 5 consecutive failures to open, 30s before a probe.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the collaborator name the breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State reports the effective state, accounting for reset-timeout expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.effectiveState()
}

// effectiveState must be called with cb.mu held.
func (cb *CircuitBreaker) effectiveState() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Execute runs fn unless the circuit is open. A failure in closed state
// counts toward maxFailures; a failure in half-open state re-opens the
// circuit immediately. Any success closes it and clears the count.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	state := cb.effectiveState()
	if state == StateOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.state = state
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = time.Now()
		}
		return err
	}
	cb.failures = 0
	cb.state = StateClosed
	return nil
}
