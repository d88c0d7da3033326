// Package resilience provides reliability patterns for collaborator CLI calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a three-state circuit breaker. Consecutive failures open the
// circuit; after the cooldown one trial call is admitted, and its outcome
// closes or re-opens the circuit.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	trial       bool             // a half-open trial call is in flight
	now         func() time.Time // for testing
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and cools down for timeout before admitting a trial call.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Execute runs fn unless the circuit is rejecting calls, in which case it
// returns ErrCircuitOpen and fn never runs.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err)
	return err
}

// State reports the circuit state as "closed", "open", or "half-open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Open reports whether the circuit is currently rejecting calls. Unlike
// Execute it never transitions state, so it is safe for status probes.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state == stateOpen && b.now().Sub(b.openedAt) < b.timeout
}

// admit decides whether a call may proceed. An open circuit past its
// cooldown moves to half-open; half-open admits only one call at a time.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.timeout {
			return ErrCircuitOpen
		}
		b.state = stateHalfOpen
		b.trial = true
		return nil
	case stateHalfOpen:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

// settle records a call outcome. A failure in half-open, or the
// maxFailures-th consecutive failure, opens the circuit; any success
// closes it.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if err != nil {
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.maxFailures {
			b.state = stateOpen
			b.openedAt = b.now()
		}
		return
	}
	b.failures = 0
	b.state = stateClosed
}
