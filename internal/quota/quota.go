// Package quota tracks per-user consumption of the remote API's daily budget.
//
// A quota day runs from midnight to midnight in a configured time zone. Usage is persisted per (user, day), so a
// day with no usage row has consumed nothing and a new day starts at zero without a reset job.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/shared"
)

const dayLayout = "2006-01-02"

// Store is the persistence the tracker needs. [repositories.QuotaRepository] implements it.
type Store interface {
	Used(ctx context.Context, userID, day string) (int, error)
	TryConsume(ctx context.Context, userID, day string, cost, ceiling int, now time.Time) (bool, int, error)
	Exhaust(ctx context.Context, userID, day string, ceiling int, now time.Time) error
}

var _ Store = (*repositories.QuotaRepository)(nil)

// Consumption is the outcome of [Tracker.TryConsume].
type Consumption struct {
	Accepted       bool
	RemainingAfter int
}

// Tracker answers whether a call may proceed against the daily ceiling.
type Tracker struct {
	store   Store
	ceiling int
	loc     *time.Location
	clock   shared.Clock
}

// NewTracker builds a tracker from the quota configuration.
func NewTracker(store Store, cfg shared.QuotaConfig, clock shared.Clock) (*Tracker, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if cfg.DailyCeiling <= 0 {
		return nil, fmt.Errorf("%w: daily ceiling must be positive", shared.ErrInvalidConfig)
	}
	if clock == nil {
		clock = shared.SystemClock
	}

	return &Tracker{
		store:   store,
		ceiling: cfg.DailyCeiling,
		loc:     loc,
		clock:   clock,
	}, nil
}

// Ceiling returns the daily budget.
func (t *Tracker) Ceiling() int { return t.ceiling }

// Now returns the tracker's current time.
func (t *Tracker) Now() time.Time { return t.clock() }

// Day returns the quota day containing at, as YYYY-MM-DD in the reset time zone.
func (t *Tracker) Day(at time.Time) string {
	return at.In(t.loc).Format(dayLayout)
}

// Today is Day(now).
func (t *Tracker) Today() string {
	return t.Day(t.clock())
}

// NextReset returns the first instant after at that starts a new quota day.
func (t *Tracker) NextReset(at time.Time) time.Time {
	local := at.In(t.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.loc).UTC()
}

// Used returns the units consumed by the user on day.
func (t *Tracker) Used(ctx context.Context, userID, day string) (int, error) {
	return t.store.Used(ctx, userID, day)
}

// Remaining returns ceiling minus consumed on day, never below zero.
func (t *Tracker) Remaining(ctx context.Context, userID, day string) (int, error) {
	used, err := t.store.Used(ctx, userID, day)
	if err != nil {
		return 0, err
	}
	return max(t.ceiling-used, 0), nil
}

// TryConsume reserves cost units on day iff consumed+cost stays within the ceiling.
//
// Atomic per (user, day) regardless of any other locking; a rejected call leaves usage untouched.
func (t *Tracker) TryConsume(ctx context.Context, userID, day string, cost int) (Consumption, error) {
	ok, used, err := t.store.TryConsume(ctx, userID, day, cost, t.ceiling, t.clock())
	if err != nil {
		return Consumption{}, err
	}
	return Consumption{Accepted: ok, RemainingAfter: max(t.ceiling-used, 0)}, nil
}

// Exhaust marks the user's day as fully consumed.
func (t *Tracker) Exhaust(ctx context.Context, userID, day string) error {
	return t.store.Exhaust(ctx, userID, day, t.ceiling, t.clock())
}
