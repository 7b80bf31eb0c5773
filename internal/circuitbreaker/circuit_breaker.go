// Package circuitbreaker guards the protocol bridge backend so repeated
// failures stop delaying scans the REST fallback could serve immediately.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/whale-scanner/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the backend is trusted and calls flow through
	StateClosed State = "closed"
	// StateOpen means the backend is skipped until the cooldown elapses
	StateOpen State = "open"
	// StateHalfOpen means a limited number of probe calls test recovery
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when the circuit breaker rejects a call outright
var ErrOpen = errors.New("circuit breaker is open")

// ErrProbeLimit is returned when the half-open probe allowance is used up
var ErrProbeLimit = errors.New("half-open probe limit reached")

// CircuitBreaker tracks backend health and short-circuits calls to a
// backend that keeps failing
type CircuitBreaker struct {
	name             string
	maxConsecutive   int           // consecutive classified failures before opening
	failureThreshold float64       // failure rate that opens the circuit (0.0-1.0)
	minCalls         int           // minimum calls before the rate check applies
	cooldown         time.Duration // time to wait before attempting half-open
	halfOpenMaxCalls int           // probe calls allowed in half-open state
	isFailure        func(error) bool

	mu                sync.RWMutex
	state             State
	failures          int
	successes         int
	totalCalls        int
	consecutiveFails  int
	halfOpenCalls     int
	halfOpenSuccesses int
	lastFailureTime   time.Time
	lastStateChange   time.Time
}

// Config configures a circuit breaker
type Config struct {
	Name             string
	MaxConsecutive   int
	FailureThreshold float64
	MinCalls         int
	Cooldown         time.Duration
	HalfOpenMaxCalls int

	// IsFailure classifies which errors count against the backend. A nil
	// classifier counts every non-nil error. Errors the classifier rejects
	// are treated as proof the backend is alive.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxConsecutive:   5,
		FailureThreshold: 0.5, // 50% failure rate
		MinCalls:         10,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	maxConsecutive := config.MaxConsecutive
	if maxConsecutive <= 0 {
		maxConsecutive = 5
	}
	minCalls := config.MinCalls
	if minCalls <= 0 {
		minCalls = 10
	}
	cooldown := config.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	halfOpenMax := config.HalfOpenMaxCalls
	if halfOpenMax <= 0 {
		halfOpenMax = 3
	}
	threshold := config.FailureThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}

	return &CircuitBreaker{
		name:             config.Name,
		maxConsecutive:   maxConsecutive,
		failureThreshold: threshold,
		minCalls:         minCalls,
		cooldown:         cooldown,
		halfOpenMaxCalls: halfOpenMax,
		isFailure:        config.IsFailure,
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// Execute runs fn with circuit breaker protection. When the circuit rejects
// the call, fn never runs and the returned error is ErrOpen or ErrProbeLimit.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)
	return err
}

// beforeRequest checks if a request can be executed
func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastStateChange) > cb.cooldown {
			cb.setState(StateHalfOpen)
			cb.halfOpenCalls = 1
			cb.halfOpenSuccesses = 0
			logging.WithFields(map[string]interface{}{
				"circuitBreaker": cb.name,
				"state":          StateHalfOpen,
			}).Info("Circuit breaker transitioning to half-open")
			return nil
		}
		return ErrOpen

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return ErrProbeLimit
		}
		cb.halfOpenCalls++
		return nil

	default:
		return nil
	}
}

// afterRequest records the result of a request. Errors the classifier does
// not count as backend failures are recorded as successes; the backend
// answered, even if the answer was a domain error.
func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	failed := err != nil && (cb.isFailure == nil || cb.isFailure(err))
	if failed {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

// onSuccess handles a successful request
func (cb *CircuitBreaker) onSuccess() {
	cb.successes++
	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen {
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMaxCalls {
			cb.setState(StateClosed)
			cb.reset()
			logging.WithFields(map[string]interface{}{
				"circuitBreaker": cb.name,
				"state":          StateClosed,
			}).Info("Circuit breaker closed after successful recovery")
		}
	}
}

// onFailure handles a failed request
func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.consecutiveFails++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.shouldOpen() {
			cb.setState(StateOpen)
			logging.WithFields(map[string]interface{}{
				"circuitBreaker":   cb.name,
				"state":            StateOpen,
				"failures":         cb.failures,
				"totalCalls":       cb.totalCalls,
				"failureRate":      cb.getFailureRate(),
				"consecutiveFails": cb.consecutiveFails,
			}).Warn("Circuit breaker opened due to failures")
		}

	case StateHalfOpen:
		// Any failure during probing reopens the circuit
		cb.setState(StateOpen)
		logging.WithFields(map[string]interface{}{
			"circuitBreaker": cb.name,
			"state":          StateOpen,
		}).Warn("Circuit breaker reopened after failed probe")
	}
}

// shouldOpen determines if the circuit should open
func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFails >= cb.maxConsecutive {
		return true
	}
	if cb.totalCalls < cb.minCalls {
		return false
	}
	return cb.getFailureRate() >= cb.failureThreshold
}

// getFailureRate calculates the current failure rate
func (cb *CircuitBreaker) getFailureRate() float64 {
	if cb.totalCalls == 0 {
		return 0.0
	}
	return float64(cb.failures) / float64(cb.totalCalls)
}

// setState changes the circuit breaker state
func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = time.Now()
}

// reset resets the circuit breaker counters
func (cb *CircuitBreaker) reset() {
	cb.failures = 0
	cb.successes = 0
	cb.totalCalls = 0
	cb.consecutiveFails = 0
	cb.halfOpenCalls = 0
	cb.halfOpenSuccesses = 0
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() *Stats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return &Stats{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		Successes:        cb.successes,
		TotalCalls:       cb.totalCalls,
		ConsecutiveFails: cb.consecutiveFails,
		FailureRate:      cb.getFailureRate(),
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	TotalCalls       int       `json:"totalCalls"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	FailureRate      float64   `json:"failureRate"`
	LastFailureTime  time.Time `json:"lastFailureTime"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.reset()

	logging.WithField("circuitBreaker", cb.name).Info("Circuit breaker manually reset")
}
