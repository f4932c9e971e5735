package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured indicates the redis client was not initialised.
var ErrNotConfigured = errors.New("store: client not configured")

const (
	snapshotKeyPrefix = "ath:asset:"
	trackedSetKey     = "ath:assets"
	cooldownKeyPrefix = "ath:cooldown:"
	eventKeyPrefix    = "ath:event:"
	logSetKey         = "ath:log"

	// Event dedupe keys only need to outlive plausible retry windows.
	eventKeyTTL = 24 * time.Hour
)

// SnapshotStore persists per-asset snapshots and the tracked-asset index.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, assetID string) (Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, snapshot Snapshot) error
	ListTracked(ctx context.Context) ([]string, error)
}

// CooldownStore claims per-asset notification cooldown markers.
type CooldownStore interface {
	ClaimCooldown(ctx context.Context, assetID string, ttl time.Duration) (bool, error)
}

// NotificationLogStore persists dispatched notification batches.
type NotificationLogStore interface {
	AppendLog(ctx context.Context, eventKey string, entry NotificationLog) (bool, error)
	ListRecentLogs(ctx context.Context, limit int) ([]NotificationLog, error)
	ListLogsBetween(ctx context.Context, from, to time.Time) ([]NotificationLog, error)
}

// Options configure redis connectivity.
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// Store implements the persistence contract over redis: hashes for snapshots,
// a set for the tracked index, TTL keys for cooldown markers and event
// dedupe, and a sorted set for the time-ordered notification log.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewStore wires a redis client into a Store.
func NewStore(opts Options) *Store {
	opTimeout := opts.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	return &Store{client: client, opTimeout: opTimeout}
}

// Close releases the underlying client resources.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	client, err := s.getClient()
	if err != nil {
		return err
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return client.Ping(ctx).Err()
}

func (s *Store) getClient() (*redis.Client, error) {
	if s == nil || s.client == nil {
		return nil, ErrNotConfigured
	}
	return s.client, nil
}

// opCtx bounds every store operation so a hung redis cannot stall a cycle.
func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// GetSnapshot loads the stored snapshot for an asset.
func (s *Store) GetSnapshot(ctx context.Context, assetID string) (Snapshot, bool, error) {
	client, err := s.getClient()
	if err != nil {
		return Snapshot{}, false, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields, err := client.HGetAll(ctx, snapshotKeyPrefix+assetID).Result()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("get snapshot %s: %w", assetID, err)
	}
	if len(fields) == 0 {
		return Snapshot{}, false, nil
	}

	snapshot, err := snapshotFromFields(assetID, fields)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snapshot, true, nil
}

// SaveSnapshot writes the snapshot hash and registers the asset as tracked.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	client, err := s.getClient()
	if err != nil {
		return err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fields := map[string]interface{}{
		"symbol":          snapshot.Symbol,
		"name":            snapshot.Name,
		"current_price":   snapshot.CurrentPrice.String(),
		"ath":             snapshot.ATH.String(),
		"ath_date":        snapshot.ATHDate.UTC().Format(time.RFC3339Nano),
		"market_cap_rank": strconv.Itoa(snapshot.MarketCapRank),
		"total_volume":    snapshot.TotalVolume.String(),
		"last_updated":    snapshot.LastUpdated.UTC().Format(time.RFC3339Nano),
	}

	if err := client.HSet(ctx, snapshotKeyPrefix+snapshot.ID, fields).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snapshot.ID, err)
	}
	if err := client.SAdd(ctx, trackedSetKey, snapshot.ID).Err(); err != nil {
		return fmt.Errorf("register tracked asset %s: %w", snapshot.ID, err)
	}
	return nil
}

// ListTracked returns ids of all assets with a stored snapshot.
func (s *Store) ListTracked(ctx context.Context) ([]string, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ids, err := client.SMembers(ctx, trackedSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list tracked assets: %w", err)
	}
	return ids, nil
}

// ClaimCooldown atomically claims the per-asset cooldown marker. It returns
// false while an unexpired marker exists; the marker expires on its own at the
// interval boundary.
func (s *Store) ClaimCooldown(ctx context.Context, assetID string, ttl time.Duration) (bool, error) {
	client, err := s.getClient()
	if err != nil {
		return false, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	claimed, err := client.SetNX(ctx, cooldownKeyPrefix+assetID, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim cooldown %s: %w", assetID, err)
	}
	return claimed, nil
}

// AppendLog writes one notification log entry keyed by event identity. It
// returns false without writing when the event was already logged, so a retry
// of the same event cannot duplicate the entry.
func (s *Store) AppendLog(ctx context.Context, eventKey string, entry NotificationLog) (bool, error) {
	client, err := s.getClient()
	if err != nil {
		return false, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	fresh, err := client.SetNX(ctx, eventKeyPrefix+eventKey, entry.ID, eventKeyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim event key %s: %w", eventKey, err)
	}
	if !fresh {
		return false, nil
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("marshal notification log: %w", err)
	}

	member := &redis.Z{
		Score:  float64(entry.SentAt.UTC().UnixMilli()),
		Member: payload,
	}
	if err := client.ZAdd(ctx, logSetKey, member).Err(); err != nil {
		return false, fmt.Errorf("append notification log: %w", err)
	}
	return true, nil
}

// ListRecentLogs returns the most recent log entries, newest first.
func (s *Store) ListRecentLogs(ctx context.Context, limit int) ([]NotificationLog, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := client.ZRevRangeByScore(ctx, logSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent logs: %w", err)
	}
	return decodeLogs(raw)
}

// ListLogsBetween returns log entries within a time window, oldest first.
func (s *Store) ListLogsBetween(ctx context.Context, from, to time.Time) ([]NotificationLog, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := client.ZRangeByScore(ctx, logSetKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UTC().UnixMilli(), 10),
		Max: strconv.FormatInt(to.UTC().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list logs between: %w", err)
	}
	return decodeLogs(raw)
}

func decodeLogs(raw []string) ([]NotificationLog, error) {
	logs := make([]NotificationLog, 0, len(raw))
	for _, member := range raw {
		var entry NotificationLog
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			return nil, fmt.Errorf("decode notification log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func snapshotFromFields(assetID string, fields map[string]string) (Snapshot, error) {
	snapshot := Snapshot{
		ID:     assetID,
		Symbol: fields["symbol"],
		Name:   fields["name"],
	}

	var err error
	if snapshot.CurrentPrice, err = decimal.NewFromString(fields["current_price"]); err != nil {
		return Snapshot{}, fmt.Errorf("parse current price for %s: %w", assetID, err)
	}
	if snapshot.ATH, err = decimal.NewFromString(fields["ath"]); err != nil {
		return Snapshot{}, fmt.Errorf("parse ath for %s: %w", assetID, err)
	}
	if raw := fields["total_volume"]; raw != "" {
		if snapshot.TotalVolume, err = decimal.NewFromString(raw); err != nil {
			return Snapshot{}, fmt.Errorf("parse total volume for %s: %w", assetID, err)
		}
	}
	if raw := fields["market_cap_rank"]; raw != "" {
		if snapshot.MarketCapRank, err = strconv.Atoi(raw); err != nil {
			return Snapshot{}, fmt.Errorf("parse rank for %s: %w", assetID, err)
		}
	}
	if raw := fields["ath_date"]; raw != "" {
		if snapshot.ATHDate, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return Snapshot{}, fmt.Errorf("parse ath date for %s: %w", assetID, err)
		}
	}
	if raw := fields["last_updated"]; raw != "" {
		if snapshot.LastUpdated, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return Snapshot{}, fmt.Errorf("parse last updated for %s: %w", assetID, err)
		}
	}

	return snapshot, nil
}

var (
	_ SnapshotStore        = (*Store)(nil)
	_ CooldownStore        = (*Store)(nil)
	_ NotificationLogStore = (*Store)(nil)
)
