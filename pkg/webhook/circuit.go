package webhook

import (
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calls to an endpoint after consecutive failures and
// lets one trial request through once recoveryTimeout has passed. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration

	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker applies defaults of 5 failures, 2 successes and 30s for non-positive values.
func NewCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Allow reports whether a call may proceed. An open breaker whose recovery
// timeout elapsed moves to half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.successes = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successes = 0
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.successes = 0
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type breakerSet struct {
	mu       sync.Mutex
	byURL    map[string]*CircuitBreaker
	failures int
	success  int
	recovery time.Duration
}

func newBreakerSet(failures, success int, recovery time.Duration) *breakerSet {
	return &breakerSet{
		byURL:    make(map[string]*CircuitBreaker),
		failures: failures,
		success:  success,
		recovery: recovery,
	}
}

func (b *breakerSet) get(u string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	cb, ok := b.byURL[u]
	if !ok {
		cb = NewCircuitBreaker(b.failures, b.success, b.recovery)
		b.byURL[u] = cb
	}
	return cb
}
