package subscribers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured indicates the subscriber pool was not initialised.
var ErrNotConfigured = errors.New("subscribers: pool not configured")

const (
	// Administrators never receive customer-facing notification mail,
	// regardless of their own notification flags.
	listEligibleSQL = `SELECT
        id,
        email,
        display_name
    FROM users
    WHERE notifications_enabled = TRUE
      AND subscription_status = 'active'
      AND subscription_ends_at > NOW()
      AND is_admin = FALSE
    ORDER BY id;`

	countEligibleSQL = `SELECT COUNT(*)
    FROM users
    WHERE notifications_enabled = TRUE
      AND subscription_status = 'active'
      AND subscription_ends_at > NOW()
      AND is_admin = FALSE;`
)

// Recipient is the read-only view of an entitled, opted-in subscriber.
type Recipient struct {
	ID    int64
	Email string
	Name  string
}

// RecipientSource resolves the eligible recipient set for a dispatch.
type RecipientSource interface {
	ListEligible(ctx context.Context) ([]Recipient, error)
}

// Store resolves recipients from the subscription database.
type Store struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewStore wires a pgx pool into a Store. queryTimeout bounds every query so a
// stalled database cannot stall a dispatch cycle.
func NewStore(pool *pgxpool.Pool, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &Store{pool: pool, queryTimeout: queryTimeout}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// queryCtx bounds a database call with the configured timeout.
func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// ListEligible returns all subscribers matching the eligibility predicate.
func (s *Store) ListEligible(ctx context.Context) ([]Recipient, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, queryErr := pool.Query(ctx, listEligibleSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list eligible recipients: %w", queryErr)
	}
	defer rows.Close()

	recipients := make([]Recipient, 0)
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.Name); err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return recipients, nil
}

// CountEligible counts recipients without materialising the list.
func (s *Store) CountEligible(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var count int64
	if scanErr := pool.QueryRow(ctx, countEligibleSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count eligible recipients: %w", scanErr)
	}
	return count, nil
}

var _ RecipientSource = (*Store)(nil)
