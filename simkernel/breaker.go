package simkernel

import (
	"sync"
	"time"
)

// breakerState is the circuit state of a RegistrationBreaker.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// RegistrationBreaker guards repeated task registration attempts against a
// scheduler table that is rejecting them (accountant/supervisor table full,
// or a misconfigured priority range). After maxFailures consecutive
// rejections it stops the caller from retrying for resetTimeout, then
// half-opens and allows attempts again: the next success closes it, the
// next failure reopens it — the same
// closed/open/half-open shape the original pool's retry governor used for
// job scheduling failures, applied here to task admission instead.
type RegistrationBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration
	failureCount int
	state        breakerState
	openedAt     time.Time
}

// NewRegistrationBreaker creates a breaker that opens after maxFailures
// consecutive failed registrations and probes again after resetTimeout.
func NewRegistrationBreaker(maxFailures int, resetTimeout time.Duration) *RegistrationBreaker {
	return &RegistrationBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

// Allow reports whether a new registration attempt should be made.
func (b *RegistrationBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) > b.resetTimeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return true
	default:
		return false
	}
}

// RecordFailure records a rejected registration attempt, opening the
// breaker once maxFailures consecutive failures accumulate.
func (b *RegistrationBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	if b.state == breakerHalfOpen || b.failureCount >= b.maxFailures {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

// RecordSuccess clears the failure count and closes the breaker.
func (b *RegistrationBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.state = breakerClosed
}
