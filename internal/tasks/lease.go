package tasks

import (
	"context"
	"database/sql"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/shared"
)

// Locker hands out per-user export leases so at most one batch runs for a user at a time,
// across goroutines and across processes sharing the database.
type Locker struct {
	leases *repositories.LeaseRepository
	ttl    time.Duration
	clock  shared.Clock
	logger *log.Logger
}

// NewLocker creates a Locker whose leases expire after ttl if never released.
func NewLocker(db *sql.DB, ttl time.Duration, clock shared.Clock, logger *log.Logger) *Locker {
	if clock == nil {
		clock = shared.SystemClock
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Locker{
		leases: repositories.NewLeaseRepository(db),
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}
}

// TryLock takes the user's lease without waiting. When ok is false another holder owns it.
//
// The returned context is ctx bounded by [shared.LeaseBudget] of the ttl; guarded work must run under it so that
// it stops before the lease can be taken over. The release func cancels that context and drops the lease, and
// must be called once the guarded work has been persisted.
func (l *Locker) TryLock(ctx context.Context, userID string) (leaseCtx context.Context, release func(), ok bool, err error) {
	holder := shared.GenerateID()
	ok, err = l.leases.Acquire(ctx, userID, holder, l.clock(), l.ttl)
	if err != nil || !ok {
		return ctx, func() {}, false, err
	}

	leaseCtx, cancel := context.WithTimeout(ctx, shared.LeaseBudget(l.ttl))
	release = func() {
		cancel()
		if err := l.leases.Release(context.WithoutCancel(ctx), userID, holder); err != nil {
			l.logger.Warn("failed to release export lease", "user", userID, "error", err)
		}
	}
	return leaseCtx, release, true, nil
}
