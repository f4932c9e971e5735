package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ath-alerts/internal/detect"
	"ath-alerts/internal/feed"
	"ath-alerts/internal/notify"
	"ath-alerts/internal/store"
	"ath-alerts/internal/subscribers"
)

type memStore struct {
	snapshots map[string]store.Snapshot
	cooldowns map[string]bool
	logKeys   map[string]bool
	logs      []store.NotificationLog
}

func newMemStore() *memStore {
	return &memStore{
		snapshots: make(map[string]store.Snapshot),
		cooldowns: make(map[string]bool),
		logKeys:   make(map[string]bool),
	}
}

func (m *memStore) GetSnapshot(ctx context.Context, assetID string) (store.Snapshot, bool, error) {
	snapshot, ok := m.snapshots[assetID]
	return snapshot, ok, nil
}

func (m *memStore) SaveSnapshot(ctx context.Context, snapshot store.Snapshot) error {
	m.snapshots[snapshot.ID] = snapshot
	return nil
}

func (m *memStore) ListTracked(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *memStore) ClaimCooldown(ctx context.Context, assetID string, ttl time.Duration) (bool, error) {
	if m.cooldowns[assetID] {
		return false, nil
	}
	m.cooldowns[assetID] = true
	return true, nil
}

func (m *memStore) AppendLog(ctx context.Context, eventKey string, entry store.NotificationLog) (bool, error) {
	if m.logKeys[eventKey] {
		return false, nil
	}
	m.logKeys[eventKey] = true
	m.logs = append(m.logs, entry)
	return true, nil
}

func (m *memStore) ListRecentLogs(ctx context.Context, limit int) ([]store.NotificationLog, error) {
	return m.logs, nil
}

func (m *memStore) ListLogsBetween(ctx context.Context, from, to time.Time) ([]store.NotificationLog, error) {
	return m.logs, nil
}

type stubFetcher struct {
	observations []feed.Observation
	err          error
}

func (s *stubFetcher) FetchRanked(ctx context.Context, page int) ([]feed.Observation, error) {
	if s.err != nil {
		return nil, s.err
	}
	if page > 1 {
		return nil, nil
	}
	return s.observations, nil
}

type stubRecipients struct{}

func (stubRecipients) ListEligible(ctx context.Context) ([]subscribers.Recipient, error) {
	return []subscribers.Recipient{{ID: 1, Email: "a@x.io"}}, nil
}

type countingSender struct {
	sent int
}

func (c *countingSender) Send(ctx context.Context, msg notify.Message) error {
	c.sent++
	return nil
}

func testService(fetcher feed.RankedFetcher, st *memStore, sender notify.Sender) *Service {
	logger := zerolog.Nop()
	engine := detect.NewEngine(st, 10, logger)
	gate := notify.NewController(st, 5*time.Minute, logger)
	queue := notify.NewDispatcher(stubRecipients{}, sender, st, logger)
	return New(fetcher, engine, gate, queue, 1, logger)
}

func obs(price, feedATH float64) feed.Observation {
	return feed.Observation{
		ID:           "bitcoin",
		Symbol:       "BTC",
		Name:         "Bitcoin",
		CurrentPrice: decimal.NewFromFloat(price),
		FeedATH:      decimal.NewFromFloat(feedATH),
	}
}

func TestRunCycleNotifiesAtMostOncePerWindow(t *testing.T) {
	st := newMemStore()
	fetcher := &stubFetcher{observations: []feed.Observation{obs(100, 100)}}
	sender := &countingSender{}
	svc := testService(fetcher, st, sender)

	summary, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle 1 failed: %v", err)
	}
	if summary.Events != 1 || summary.Notified != 1 {
		t.Fatalf("cycle 1: expected one notified event, got %+v", summary)
	}

	// unchanged data: no new event
	summary, err = svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle 2 failed: %v", err)
	}
	if summary.Events != 0 {
		t.Fatalf("cycle 2: expected no events, got %+v", summary)
	}

	// new crossing inside the cooldown window: detected but suppressed
	fetcher.observations = []feed.Observation{obs(120, 120)}
	summary, err = svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle 3 failed: %v", err)
	}
	if summary.Events != 1 || summary.Notified != 0 || summary.Suppressed != 1 {
		t.Fatalf("cycle 3: expected suppression, got %+v", summary)
	}

	if sender.sent != 1 {
		t.Fatalf("expected exactly one send across cycles, got %d", sender.sent)
	}
	if len(st.logs) != 1 {
		t.Fatalf("expected one log entry, got %d", len(st.logs))
	}
}

type pagedFetcher struct {
	pages map[int][]feed.Observation
	errs  map[int]error
}

func (p *pagedFetcher) FetchRanked(ctx context.Context, page int) ([]feed.Observation, error) {
	if err := p.errs[page]; err != nil {
		return nil, err
	}
	return p.pages[page], nil
}

func TestRunCycleKeepsCachedPagesWhenCircuitOpens(t *testing.T) {
	st := newMemStore()
	fetcher := &pagedFetcher{
		pages: map[int][]feed.Observation{1: {obs(100, 100)}},
		errs:  map[int]error{2: feed.ErrCircuitOpen},
	}
	sender := &countingSender{}

	logger := zerolog.Nop()
	engine := detect.NewEngine(st, 10, logger)
	gate := notify.NewController(st, 5*time.Minute, logger)
	queue := notify.NewDispatcher(stubRecipients{}, sender, st, logger)
	svc := New(fetcher, engine, gate, queue, 2, logger)

	summary, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if summary.Skipped {
		t.Fatalf("page-1 observations must still be reconciled, got %+v", summary)
	}
	if summary.Assets != 1 || summary.Events != 1 || summary.Notified != 1 {
		t.Fatalf("expected the cached page to produce one notified event, got %+v", summary)
	}
}

func TestRunCycleSkipsWhenCircuitOpen(t *testing.T) {
	st := newMemStore()
	svc := testService(&stubFetcher{err: feed.ErrCircuitOpen}, st, &countingSender{})

	summary, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("circuit open must not be an error: %v", err)
	}
	if !summary.Skipped {
		t.Fatalf("expected skipped cycle, got %+v", summary)
	}
}

func TestRunCycleReturnsFetchError(t *testing.T) {
	st := newMemStore()
	svc := testService(&stubFetcher{err: errors.New("upstream down")}, st, &countingSender{})

	if _, err := svc.RunCycle(context.Background()); err == nil {
		t.Fatal("first page failure should abandon the cycle with an error")
	}
}
