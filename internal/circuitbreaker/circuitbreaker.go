// Package circuitbreaker guards calls to the prediction service.
//
// Each service operation gets its own breaker:
//   - CLOSED: calls pass through
//   - OPEN: after N consecutive failures, calls fail fast
//   - HALF_OPEN: after the recovery timeout, probe calls are let through
//     and M successes close the breaker again
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is normal operation
	StateClosed State = 0
	// StateOpen is rejecting all calls
	StateOpen State = 1
	// StateHalfOpen is probing whether the service recovered
	StateHalfOpen State = 2
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Status is a point-in-time snapshot of a breaker, served on /ready.
type Status struct {
	Operation       string    `json:"operation"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// Settings configures every breaker created by a Registry.
type Settings struct {
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
	// StateGauge, when set, mirrors the state per operation.
	StateGauge *prometheus.GaugeVec
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// CircuitBreaker tracks the health of one prediction service operation.
type CircuitBreaker struct {
	operation string
	settings  Settings

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a closed breaker for operation.
func New(operation string, settings Settings) *CircuitBreaker {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	cb := &CircuitBreaker{
		operation: operation,
		settings:  settings,
		state:     StateClosed,
	}
	cb.publish()
	return cb
}

// Allow reports whether a call may proceed, moving an expired OPEN breaker
// to HALF_OPEN.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.checkRecovery()
	return cb.state != StateOpen
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.settings.SuccessThreshold {
			cb.transitionTo(StateClosed)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

// RecordFailure records a failed call. A single failure while HALF_OPEN
// reopens the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.settings.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	case StateClosed:
		if cb.failureCount >= cb.settings.FailureThreshold {
			cb.transitionTo(StateOpen)
		}
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.checkRecovery()
	return cb.state
}

// Status returns a snapshot of the breaker.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.checkRecovery()
	return Status{
		Operation:       cb.operation,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// ForceOpen opens the breaker, e.g. during planned downstream maintenance.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailureTime = cb.settings.Now()
	cb.transitionTo(StateOpen)
}

// ForceClose closes the breaker.
func (cb *CircuitBreaker) ForceClose() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(StateClosed)
}

// checkRecovery must be called with the lock held.
func (cb *CircuitBreaker) checkRecovery() {
	if cb.state == StateOpen && cb.settings.Now().Sub(cb.lastFailureTime) >= cb.settings.RecoveryTimeout {
		cb.transitionTo(StateHalfOpen)
	}
}

// transitionTo must be called with the lock held.
func (cb *CircuitBreaker) transitionTo(next State) {
	cb.state = next

	// Reset counters on state change
	switch next {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount = 0
	}
	cb.publish()
}

func (cb *CircuitBreaker) publish() {
	if cb.settings.StateGauge != nil {
		cb.settings.StateGauge.WithLabelValues(cb.operation).Set(float64(cb.state))
	}
}

// Registry holds one breaker per operation.
type Registry struct {
	settings Settings

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry whose breakers share settings.
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings: settings,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for operation, creating it if necessary.
func (r *Registry) Get(operation string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[operation]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok = r.breakers[operation]; ok {
		return cb
	}
	cb = New(operation, r.settings)
	r.breakers[operation] = cb
	return cb
}

// Statuses returns a snapshot of every breaker created so far.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb.Status())
	}
	return out
}
