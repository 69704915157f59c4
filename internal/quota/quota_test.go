package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/shared"
)

func newTracker(t *testing.T, cfg shared.QuotaConfig, now time.Time) *Tracker {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shared.RunMigrations(db))

	tracker, err := NewTracker(repositories.NewQuotaRepository(db), cfg, func() time.Time { return now })
	require.NoError(t, err)
	return tracker
}

func TestDayAndNextReset(t *testing.T) {
	cfg := shared.QuotaConfig{DailyCeiling: 100, ResetTimezone: "America/Los_Angeles", PlaylistCost: 2, ChannelCost: 101}
	// 2025-03-14 06:30 UTC is still 2025-03-13 in Los Angeles (PDT, UTC-7).
	now := time.Date(2025, 3, 14, 6, 30, 0, 0, time.UTC)
	tracker := newTracker(t, cfg, now)

	assert.Equal(t, "2025-03-13", tracker.Day(now))
	assert.Equal(t, "2025-03-13", tracker.Today())
	assert.Equal(t, time.Date(2025, 3, 14, 7, 0, 0, 0, time.UTC), tracker.NextReset(now))

	next := tracker.NextReset(now)
	assert.True(t, next.After(now))
	assert.Equal(t, "2025-03-14", tracker.Day(next))
	assert.Equal(t, "2025-03-13", tracker.Day(next.Add(-time.Nanosecond)))
}

func TestNextResetAcrossDST(t *testing.T) {
	cfg := shared.QuotaConfig{DailyCeiling: 100, ResetTimezone: "America/Los_Angeles", PlaylistCost: 1, ChannelCost: 1}
	// The night before the spring-forward switch still resets at local midnight (PST, UTC-8).
	now := time.Date(2025, 3, 8, 20, 0, 0, 0, time.UTC)
	tracker := newTracker(t, cfg, now)

	assert.Equal(t, time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC), tracker.NextReset(now))
}

func TestUTCDefault(t *testing.T) {
	cfg := shared.QuotaConfig{DailyCeiling: 100, PlaylistCost: 1, ChannelCost: 1}
	now := time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)
	tracker := newTracker(t, cfg, now)

	assert.Equal(t, "2025-12-31", tracker.Today())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), tracker.NextReset(now))
}

func TestTryConsume(t *testing.T) {
	ctx := context.Background()
	cfg := shared.QuotaConfig{DailyCeiling: 100, ResetTimezone: "UTC", PlaylistCost: 50, ChannelCost: 101}
	tracker := newTracker(t, cfg, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))
	day := tracker.Today()

	remaining, err := tracker.Remaining(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 100, remaining)

	got, err := tracker.TryConsume(ctx, "u1", day, 80)
	require.NoError(t, err)
	assert.Equal(t, Consumption{Accepted: true, RemainingAfter: 20}, got)

	got, err = tracker.TryConsume(ctx, "u1", day, 50)
	require.NoError(t, err)
	assert.False(t, got.Accepted, "80 + 50 exceeds the ceiling of 100")
	assert.Equal(t, 20, got.RemainingAfter)

	used, err := tracker.Used(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 80, used, "a rejected call leaves usage untouched")

	remaining, err = tracker.Remaining(ctx, "u1", "2025-03-15")
	require.NoError(t, err)
	assert.Equal(t, 100, remaining, "a new day starts at zero")
}

func TestExhaust(t *testing.T) {
	ctx := context.Background()
	cfg := shared.QuotaConfig{DailyCeiling: 100, ResetTimezone: "UTC", PlaylistCost: 2, ChannelCost: 3}
	tracker := newTracker(t, cfg, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC))
	day := tracker.Today()

	require.NoError(t, tracker.Exhaust(ctx, "u1", day))

	remaining, err := tracker.Remaining(ctx, "u1", day)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	got, err := tracker.TryConsume(ctx, "u1", day, 1)
	require.NoError(t, err)
	assert.False(t, got.Accepted)
}

func TestNewTrackerRejectsBadZone(t *testing.T) {
	_, err := NewTracker(nil, shared.QuotaConfig{DailyCeiling: 1, ResetTimezone: "Nowhere/Else"}, nil)
	assert.ErrorIs(t, err, shared.ErrInvalidConfig)
}
