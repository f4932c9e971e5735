package subscribers

import (
	"context"
	"testing"
	"time"
)

func TestQueryCtxAppliesDeadline(t *testing.T) {
	st := NewStore(nil, 2*time.Second)

	before := time.Now()
	ctx, cancel := st.queryCtx(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("query context must carry a deadline even when the caller's does not")
	}
	remaining := deadline.Sub(before)
	if remaining <= 0 || remaining > 2*time.Second+100*time.Millisecond {
		t.Fatalf("unexpected deadline %s from now", remaining)
	}
}

func TestQueryCtxKeepsEarlierCallerDeadline(t *testing.T) {
	st := NewStore(nil, time.Minute)

	parent, parentCancel := context.WithTimeout(context.Background(), time.Second)
	defer parentCancel()

	ctx, cancel := st.queryCtx(parent)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if time.Until(deadline) > 2*time.Second {
		t.Fatalf("caller deadline must not be extended, got %s", time.Until(deadline))
	}
}

func TestNewStoreDefaultsTimeout(t *testing.T) {
	st := NewStore(nil, 0)
	if st.queryTimeout != 5*time.Second {
		t.Fatalf("expected 5s default query timeout, got %s", st.queryTimeout)
	}
}

func TestUnconfiguredStore(t *testing.T) {
	var st *Store
	if _, err := st.ListEligible(context.Background()); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := st.CountEligible(context.Background()); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
