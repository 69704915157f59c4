package repositories

import (
	"context"
	"fmt"
	"time"
)

// LeaseRepository stores time-bound per-user export leases.
//
// A lease lives in the database rather than in process memory, so every scheduler instance sharing
// the database observes it. Expired leases are taken over by the next caller.
type LeaseRepository struct {
	q Querier
}

// NewLeaseRepository creates a new LeaseRepository with the given database connection
func NewLeaseRepository(q Querier) *LeaseRepository {
	return &LeaseRepository{q: q}
}

// Acquire takes the user's lease for holder until now+ttl.
//
// Returns false without waiting when another holder has an unexpired lease.
func (r *LeaseRepository) Acquire(ctx context.Context, userID, holder string, now time.Time, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO export_leases (user_id, holder, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET holder = excluded.holder, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		WHERE export_leases.expires_at <= excluded.acquired_at
	`

	acquired := now.UnixMilli()
	res, err := r.q.ExecContext(ctx, query, userID, holder, acquired, now.Add(ttl).UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	n, err := affected(res)
	return n > 0, err
}

// Release drops the user's lease if holder still owns it.
func (r *LeaseRepository) Release(ctx context.Context, userID, holder string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM export_leases WHERE user_id = ? AND holder = ?`, userID, holder); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Holder returns the current unexpired holder of the user's lease, or "" if the lease is free.
func (r *LeaseRepository) Holder(ctx context.Context, userID string, now time.Time) (string, error) {
	var holder string
	err := r.q.QueryRowContext(ctx,
		`SELECT holder FROM export_leases WHERE user_id = ? AND expires_at > ?`,
		userID, now.UnixMilli(),
	).Scan(&holder)
	if isNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lease: %w", err)
	}
	return holder, nil
}
