package feed

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(3, 5*time.Minute)
	b.nowFn = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if err := b.Allow(); err != nil {
			t.Fatalf("breaker should stay closed below the threshold, got %v", err)
		}
	}

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after 3 failures, got %v", err)
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open state, got %s", b.State())
	}
}

func TestBreakerAdmitsProbeAfterCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(3, 5*time.Minute)
	b.nowFn = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(5*time.Minute + time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe to be admitted after cooldown, got %v", err)
	}

	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed state after successful probe, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("closed breaker should admit calls, got %v", err)
	}
}

func TestBreakerFailedProbeReArmsCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(3, 5*time.Minute)
	b.nowFn = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	now = now.Add(6 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected probe to be admitted, got %v", err)
	}

	b.RecordFailure()
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("failed probe should re-open the breaker, got %v", err)
	}
}
