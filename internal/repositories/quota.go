package repositories

import (
	"context"
	"fmt"
	"time"
)

// QuotaRepository persists per-user, per-day quota usage.
//
// A day with no row has zero usage, so a new day always starts at zero without any reset job.
type QuotaRepository struct {
	q Querier
}

// NewQuotaRepository creates a new QuotaRepository with the given database connection
func NewQuotaRepository(q Querier) *QuotaRepository {
	return &QuotaRepository{q: q}
}

// Used returns the units the user consumed on day.
func (r *QuotaRepository) Used(ctx context.Context, userID, day string) (int, error) {
	var units int
	err := r.q.QueryRowContext(ctx, `SELECT units FROM quota_usage WHERE user_id = ? AND day = ?`, userID, day).Scan(&units)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota usage: %w", err)
	}
	return units, nil
}

// TryConsume adds cost to the user's usage for day iff the result stays within ceiling.
//
// The check and the increment are one statement, so concurrent callers can never overshoot.
// Returns whether the units were consumed and the usage afterwards.
func (r *QuotaRepository) TryConsume(ctx context.Context, userID, day string, cost, ceiling int, now time.Time) (bool, int, error) {
	if cost < 0 {
		return false, 0, fmt.Errorf("negative quota cost %d", cost)
	}
	if cost > ceiling {
		used, err := r.Used(ctx, userID, day)
		return false, used, err
	}

	query := `
		INSERT INTO quota_usage (user_id, day, units, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE
		SET units = quota_usage.units + excluded.units, updated_at = excluded.updated_at
		WHERE quota_usage.units + excluded.units <= ?
		RETURNING units
	`

	var used int
	err := r.q.QueryRowContext(ctx, query, userID, day, cost, now.UTC(), ceiling).Scan(&used)
	if isNoRows(err) {
		used, err := r.Used(ctx, userID, day)
		return false, used, err
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to consume quota: %w", err)
	}
	return true, used, nil
}

// Exhaust raises the user's usage for day to at least ceiling.
//
// Used when the remote API reports its own quota as spent before the local count reached the ceiling.
func (r *QuotaRepository) Exhaust(ctx context.Context, userID, day string, ceiling int, now time.Time) error {
	query := `
		INSERT INTO quota_usage (user_id, day, units, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE
		SET units = MAX(quota_usage.units, excluded.units), updated_at = excluded.updated_at
	`

	if _, err := r.q.ExecContext(ctx, query, userID, day, ceiling, now.UTC()); err != nil {
		return fmt.Errorf("failed to exhaust quota: %w", err)
	}
	return nil
}
