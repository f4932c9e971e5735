package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeCooldowns struct {
	claimed map[string]bool
	err     error
}

func (f *fakeCooldowns) ClaimCooldown(ctx context.Context, assetID string, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.claimed[assetID] {
		return false, nil
	}
	if f.claimed == nil {
		f.claimed = make(map[string]bool)
	}
	f.claimed[assetID] = true
	return true, nil
}

func TestShouldNotifyClaimsOnce(t *testing.T) {
	c := NewController(&fakeCooldowns{claimed: make(map[string]bool)}, 5*time.Minute, zerolog.Nop())

	ok, err := c.ShouldNotify(context.Background(), "bitcoin")
	if err != nil || !ok {
		t.Fatalf("first claim should succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = c.ShouldNotify(context.Background(), "bitcoin")
	if err != nil {
		t.Fatalf("second check errored: %v", err)
	}
	if ok {
		t.Fatal("second claim within the window must be suppressed")
	}

	ok, err = c.ShouldNotify(context.Background(), "ethereum")
	if err != nil || !ok {
		t.Fatalf("other assets are gated independently, got ok=%v err=%v", ok, err)
	}
}

func TestShouldNotifyPropagatesStoreError(t *testing.T) {
	c := NewController(&fakeCooldowns{err: errors.New("store down")}, 5*time.Minute, zerolog.Nop())

	if _, err := c.ShouldNotify(context.Background(), "bitcoin"); err == nil {
		t.Fatal("store failure must surface as an error")
	}
}
