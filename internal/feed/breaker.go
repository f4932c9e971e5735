package feed

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of a network attempt while the breaker
// cooldown window is active. Callers can skip the cycle quietly rather than
// treating it as an upstream failure.
var ErrCircuitOpen = errors.New("feed: circuit open")

// BreakerState reports whether the breaker currently admits calls.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
)

func (s BreakerState) String() string {
	if s == BreakerOpen {
		return "open"
	}
	return "closed"
}

// Breaker counts consecutive upstream failures and fails fast for a fixed
// cooldown window once the threshold is reached. State lives on the instance
// so a breaker can be constructed in any state for testing.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu        sync.Mutex
	failures  int
	openUntil time.Time
	nowFn     func() time.Time
}

// NewBreaker constructs a closed breaker.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		nowFn:       time.Now,
	}
}

// Allow reports whether a call may proceed. While the cooldown window is
// active it returns ErrCircuitOpen. After the window expires the next call is
// admitted as a probe; its outcome decides whether the breaker closes.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures >= b.maxFailures && b.nowFn().Before(b.openUntil) {
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess closes the breaker and resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.openUntil = time.Time{}
}

// RecordFailure counts one failure; crossing the threshold opens the breaker
// for the cooldown window. A failed probe after expiry re-arms the window.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.maxFailures {
		b.openUntil = b.nowFn().Add(b.cooldown)
	}
}

// State reports the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures >= b.maxFailures && b.nowFn().Before(b.openUntil) {
		return BreakerOpen
	}
	return BreakerClosed
}
