// Package breaker implements the no-progress circuit breaker that halts the
// run loop after sustained lack of progress.
package breaker

import "github.com/forgekit/forge/internal/domain"

// Action is the breaker's verdict after recording an iteration
type Action int

const (
	Continue Action = iota
	OpenCircuit
)

// Breaker tracks consecutive no-progress iterations against a fixed limit.
// Once open it stays open; only Reset (a fresh run) closes it again.
type Breaker struct {
	state           domain.CircuitBreakerState
	noProgressLimit int
}

// New creates a closed breaker with the given no-progress limit
func New(noProgressLimit int) *Breaker {
	return &Breaker{
		state:           domain.DefaultCircuitBreakerState(),
		noProgressLimit: noProgressLimit,
	}
}

// FromState restores a breaker from a persisted snapshot
func FromState(state domain.CircuitBreakerState, noProgressLimit int) *Breaker {
	return &Breaker{state: state, noProgressLimit: noProgressLimit}
}

// RecordProgress resets the counter and closes the breaker
func (b *Breaker) RecordProgress() Action {
	b.state.ConsecutiveNoProgress = 0
	b.state.State = domain.CircuitClosed
	return Continue
}

// RecordNoProgress increments the counter, opening the breaker once the
// limit is reached. A limit of 1 opens on the very first call.
func (b *Breaker) RecordNoProgress() Action {
	b.state.ConsecutiveNoProgress++

	if b.state.ConsecutiveNoProgress >= b.noProgressLimit {
		b.state.State = domain.CircuitOpen
		return OpenCircuit
	}
	b.state.State = domain.CircuitHalfOpen
	return Continue
}

// State returns the persistable breaker snapshot
func (b *Breaker) State() domain.CircuitBreakerState {
	return b.state
}

// ConsecutiveNoProgress returns the current no-progress streak
func (b *Breaker) ConsecutiveNoProgress() int {
	return b.state.ConsecutiveNoProgress
}

// IsOpen reports whether the breaker has tripped
func (b *Breaker) IsOpen() bool {
	return b.state.State == domain.CircuitOpen
}

// IsClosed reports whether the breaker is fully closed
func (b *Breaker) IsClosed() bool {
	return b.state.State == domain.CircuitClosed
}

// IsHalfOpen reports whether the breaker has seen no-progress iterations
// without tripping yet
func (b *Breaker) IsHalfOpen() bool {
	return b.state.State == domain.CircuitHalfOpen
}

// Reset clears all breaker state back to closed
func (b *Breaker) Reset() {
	b.state = domain.DefaultCircuitBreakerState()
}
