package resume

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/quota"
	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/shared"
	"github.com/desertthunder/ytexport/internal/tasks"
	ytesting "github.com/desertthunder/ytexport/internal/testing"
)

const userID = "user-1"

type fixture struct {
	api        *ytesting.FakeSourceAPI
	clock      *ytesting.Clock
	tracker    *quota.Tracker
	engine     *tasks.ExportEngine
	controller *Controller
}

func newFixture(t *testing.T, ceiling, cost int) *fixture {
	t.Helper()
	return newFixtureWithLease(t, ceiling, cost, time.Minute, nil)
}

// newFixtureWithLease uses leaseClock for lease expiry, or the fixture clock when nil.
func newFixtureWithLease(t *testing.T, ceiling, cost int, ttl time.Duration, leaseClock shared.Clock) *fixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shared.RunMigrations(db))

	clock := ytesting.NewClock(now)
	api := ytesting.NewFakeSourceAPI(cost, cost)
	tracker, err := quota.NewTracker(
		repositories.NewQuotaRepository(db),
		shared.QuotaConfig{DailyCeiling: ceiling, ResetTimezone: "UTC"},
		clock.Now,
	)
	require.NoError(t, err)

	logger := shared.NewLogger(nil)
	if leaseClock == nil {
		leaseClock = clock.Now
	}
	locker := tasks.NewLocker(db, ttl, leaseClock, logger)
	engine := tasks.NewExportEngine(tasks.Deps{
		DB: db, API: api, Quota: tracker, Locker: locker, Clock: clock.Now, Logger: logger,
	})
	controller := NewController(Deps{
		DB:                db,
		Runner:            engine,
		Quota:             tracker,
		Locker:            locker,
		Policy:            policy,
		MaxBatchesPerTick: 10,
		Clock:             clock.Now,
		Logger:            logger,
	})
	return &fixture{api: api, clock: clock, tracker: tracker, engine: engine, controller: controller}
}

func (f *fixture) init(t *testing.T, playlists ...string) {
	t.Helper()
	refs := make([]models.SourceRef, len(playlists))
	for i, id := range playlists {
		refs[i] = models.SourceRef{ExternalID: id}
	}
	_, err := f.engine.InitExport(context.Background(), userID, refs, nil)
	require.NoError(t, err)
}

func (f *fixture) status(t *testing.T) *models.AutoResume {
	t.Helper()
	rec, err := f.controller.Status(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestEnableDisableStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 2)

	rec, err := f.controller.Status(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, rec, "no record before the first enable")

	require.NoError(t, f.controller.Disable(ctx, userID), "disabling an absent record is a no-op")

	rec, err = f.controller.Enable(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.ResumeActive, rec.Status)
	assert.Equal(t, 1, rec.Version)

	again, err := f.controller.Enable(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID(), again.ID(), "enable reuses the record")
	assert.Equal(t, models.ResumeActive, again.Status)

	require.NoError(t, f.controller.Disable(ctx, userID))
	assert.Equal(t, models.ResumeDisabled, f.status(t).Status)

	_, err = f.controller.Enable(ctx, "")
	assert.ErrorIs(t, err, shared.ErrMissingArgument)
}

func TestAttemptQuotaPause(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 50)
	f.api.AddPage(models.SourcePlaylist, "P1", "", "", "v1")
	f.init(t, "P1")

	_, err := f.tracker.TryConsume(ctx, userID, f.tracker.Today(), 80)
	require.NoError(t, err)

	_, err = f.controller.Enable(ctx, userID)
	require.NoError(t, err)

	res, err := f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.True(t, res.Ran)
	require.NotNil(t, res.Batch)
	assert.True(t, res.Batch.ShouldStop)
	assert.Equal(t, OutcomeQuotaExhausted.String(), res.Outcome)

	rec := f.status(t)
	assert.Equal(t, models.ResumePaused, rec.Status)
	assert.Equal(t, models.PausedQuotaExceeded, rec.PausedReason)
	require.NotNil(t, rec.PausedUntil)
	reset := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	assert.True(t, rec.PausedUntil.Equal(reset))
	assert.True(t, rec.NextAttemptAt.Equal(reset))
	assert.Empty(t, f.api.Calls())

	t.Run("attempt before pausedUntil is a no-op", func(t *testing.T) {
		f.clock.Set(reset.Add(-time.Second))

		res, err := f.controller.Attempt(ctx, userID)
		require.NoError(t, err)
		assert.False(t, res.Ran)
		assert.Equal(t, SkipNotEligible, res.Skipped)

		after := f.status(t)
		assert.Equal(t, rec.Version, after.Version)
		assert.Equal(t, rec.Status, after.Status)
		assert.Equal(t, rec.ConsecutiveFailures, after.ConsecutiveFailures)
	})

	t.Run("attempt after reset resumes and completes", func(t *testing.T) {
		f.clock.Set(reset)

		res, err := f.controller.Attempt(ctx, userID)
		require.NoError(t, err)
		assert.True(t, res.Ran)
		assert.True(t, res.Batch.ExportComplete)
		assert.Equal(t, models.ResumeDisabled, f.status(t).Status)
	})
}

func TestAttemptCompletionDisables(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 2)
	f.api.AddPage(models.SourcePlaylist, "P1", "", "a", "v1")
	f.api.AddPage(models.SourcePlaylist, "P1", "a", "", "v2")
	f.init(t, "P1")

	_, err := f.controller.Enable(ctx, userID)
	require.NoError(t, err)

	res, err := f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProgress.String(), res.Outcome)
	rec := f.status(t)
	assert.Equal(t, models.ResumeActive, rec.Status)
	assert.True(t, rec.NextAttemptAt.Equal(now))
	assert.True(t, rec.LastAttemptAt.Equal(now))

	res, err = f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete.String(), res.Outcome)
	assert.Equal(t, models.ResumeDisabled, f.status(t).Status)

	res, err = f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, SkipNotEligible, res.Skipped)
}

func TestAttemptRemoteFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failures back off", func(t *testing.T) {
		f := newFixture(t, 100, 2)
		f.api.AddPage(models.SourcePlaylist, "P1", "", "", "v1")
		f.init(t, "P1")
		_, err := f.controller.Enable(ctx, userID)
		require.NoError(t, err)

		f.api.FailNext(errors.New("connection reset"))
		res, err := f.controller.Attempt(ctx, userID)
		require.NoError(t, err, "remote failures are absorbed into the record")
		assert.Contains(t, res.BatchError, "connection reset")

		rec := f.status(t)
		assert.Equal(t, models.ResumePaused, rec.Status)
		assert.Equal(t, models.PausedTransientError, rec.PausedReason)
		assert.Equal(t, 1, rec.ConsecutiveFailures)
		assert.True(t, rec.PausedUntil.Equal(now.Add(time.Minute)))
		assert.Contains(t, rec.LastError, "connection reset")

		f.clock.Set(*rec.PausedUntil)
		f.api.FailNext(shared.ErrTransient)
		_, err = f.controller.Attempt(ctx, userID)
		require.NoError(t, err)

		rec = f.status(t)
		assert.Equal(t, 2, rec.ConsecutiveFailures)
		assert.True(t, rec.PausedUntil.Equal(f.clock.Now().Add(2*time.Minute)))

		f.clock.Set(*rec.PausedUntil)
		_, err = f.controller.Attempt(ctx, userID)
		require.NoError(t, err)
		rec = f.status(t)
		assert.Equal(t, models.ResumeDisabled, rec.Status, "the retry finished the export")
		assert.Zero(t, rec.ConsecutiveFailures)
	})

	t.Run("fatal failure disables", func(t *testing.T) {
		f := newFixture(t, 100, 2)
		f.init(t, "P1")
		_, err := f.controller.Enable(ctx, userID)
		require.NoError(t, err)

		f.api.FailNext(errors.Join(shared.ErrFatal, shared.ErrNotAuthenticated))
		res, err := f.controller.Attempt(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFatal.String(), res.Outcome)

		rec := f.status(t)
		assert.Equal(t, models.ResumeDisabled, rec.Status)
		assert.Equal(t, models.PausedFatalError, rec.PausedReason)
		assert.Contains(t, rec.LastError, shared.ErrNotAuthenticated.Error())
	})
}

func TestAttemptWithoutRecord(t *testing.T) {
	f := newFixture(t, 100, 2)

	res, err := f.controller.Attempt(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, SkipNoRecord, res.Skipped)
}

func TestConcurrentAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 2)
	f.api.AddPage(models.SourcePlaylist, "P1", "", "a", "v1")
	f.init(t, "P1")
	_, err := f.controller.Enable(ctx, userID)
	require.NoError(t, err)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	f.api.BeforeFetch(func(context.Context, ytesting.FetchCall) {
		once.Do(func() {
			close(entered)
			<-proceed
		})
	})

	type outcome struct {
		res *AttemptResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := f.controller.Attempt(ctx, userID)
		first <- outcome{res, err}
	}()

	<-entered
	before := f.status(t)

	second, err := f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.False(t, second.Ran)
	assert.Equal(t, SkipLeaseHeld, second.Skipped)
	assert.Equal(t, before.Version, f.status(t).Version, "the skipped attempt wrote nothing")

	close(proceed)
	got := <-first
	require.NoError(t, got.err)
	assert.True(t, got.res.Ran)
	assert.Len(t, f.api.Calls(), 1, "exactly one batch ran")
}

func TestAttemptStopsBeforeLeaseExpires(t *testing.T) {
	ctx := context.Background()
	const ttl = 300 * time.Millisecond
	f := newFixtureWithLease(t, 100, 2, ttl, shared.SystemClock)
	f.api.AddPage(models.SourcePlaylist, "P1", "", "", "v1")
	f.init(t, "P1")
	_, err := f.controller.Enable(ctx, userID)
	require.NoError(t, err)

	entered := make(chan struct{})
	var once sync.Once
	f.api.BeforeFetch(func(fetchCtx context.Context, _ ytesting.FetchCall) {
		once.Do(func() { close(entered) })

		deadline, ok := fetchCtx.Deadline()
		if assert.True(t, ok, "fetch runs under a deadline") {
			assert.LessOrEqual(t, time.Until(deadline), shared.LeaseBudget(ttl))
		}
		select {
		case <-fetchCtx.Done():
		case <-time.After(5 * ttl):
			t.Error("fetch outlived the lease")
		}
	})

	first := make(chan *AttemptResult, 1)
	go func() {
		res, err := f.controller.Attempt(ctx, userID)
		assert.NoError(t, err)
		first <- res
	}()

	<-entered
	second, err := f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, SkipLeaseHeld, second.Skipped)

	res := <-first
	require.NotNil(t, res)
	assert.True(t, res.Ran)
	assert.Equal(t, OutcomeTransient.String(), res.Outcome)
	assert.Contains(t, res.BatchError, context.DeadlineExceeded.Error())

	rec := f.status(t)
	assert.Equal(t, models.ResumePaused, rec.Status)
	assert.Equal(t, models.PausedTransientError, rec.PausedReason)

	assert.Len(t, f.api.Calls(), 1, "the page was fetched once")
	used, err := f.tracker.Used(ctx, userID, f.tracker.Today())
	require.NoError(t, err)
	assert.Equal(t, 2, used, "quota was charged once")

	f.api.BeforeFetch(nil)
	f.clock.Set(*rec.PausedUntil)
	res, err = f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeComplete.String(), res.Outcome, "the aborted page is fetched again")
	assert.Equal(t, 1, res.Batch.VideosImported)
}

func TestOnProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 2)
	f.api.AddPage(models.SourcePlaylist, "P1", "", "a", "v1")
	f.api.AddPage(models.SourcePlaylist, "P1", "a", "", "v2")
	f.init(t, "P1")

	var notified []string
	f.controller.OnProgress(func(user string) { notified = append(notified, user) })

	res, err := f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, SkipNoRecord, res.Skipped)
	assert.Empty(t, notified, "nothing ran")

	_, err = f.controller.Enable(ctx, userID)
	require.NoError(t, err)

	f.api.FailNext(errors.New("connection reset"))
	_, err = f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{userID}, notified, "failed batches are reported too")

	f.clock.Set(*f.status(t).PausedUntil)
	notified = nil
	result := f.controller.Tick(ctx)
	assert.Equal(t, 2, result.Batches)
	assert.Equal(t, []string{userID, userID}, notified, "every batch run by a tick is reported")
}

func TestDisableDuringAttemptWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100, 2)
	f.api.AddPage(models.SourcePlaylist, "P1", "", "a", "v1")
	f.init(t, "P1")
	_, err := f.controller.Enable(ctx, userID)
	require.NoError(t, err)

	f.api.BeforeFetch(func(context.Context, ytesting.FetchCall) {
		assert.NoError(t, f.controller.Disable(ctx, userID))
	})

	res, err := f.controller.Attempt(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, SkipSuperseded, res.Skipped)

	rec := f.status(t)
	assert.Equal(t, models.ResumeDisabled, rec.Status)
	assert.Nil(t, rec.NextAttemptAt)
}

func TestTick(t *testing.T) {
	ctx := context.Background()

	t.Run("drains until quota runs out", func(t *testing.T) {
		f := newFixture(t, 6, 2)
		f.api.AddPage(models.SourcePlaylist, "P1", "", "a", "v1")
		f.api.AddPage(models.SourcePlaylist, "P1", "a", "b", "v2")
		f.api.AddPage(models.SourcePlaylist, "P1", "b", "c", "v3")
		f.api.AddPage(models.SourcePlaylist, "P1", "c", "", "v4")
		f.init(t, "P1")
		_, err := f.controller.Enable(ctx, userID)
		require.NoError(t, err)

		result := f.controller.Tick(ctx)
		assert.Equal(t, TickResult{Due: 1, Batches: 3}, result)
		assert.Equal(t, models.ResumePaused, f.status(t).Status)

		result = f.controller.Tick(ctx)
		assert.Equal(t, TickResult{}, result, "paused record is not due")

		f.clock.Set(f.tracker.NextReset(f.clock.Now()))
		result = f.controller.Tick(ctx)
		assert.Equal(t, TickResult{Due: 1, Batches: 1}, result)
		assert.Equal(t, models.ResumeDisabled, f.status(t).Status)
	})

	t.Run("ignores disabled users", func(t *testing.T) {
		f := newFixture(t, 100, 2)
		f.init(t, "P1")
		_, err := f.controller.Enable(ctx, userID)
		require.NoError(t, err)
		require.NoError(t, f.controller.Disable(ctx, userID))

		assert.Equal(t, TickResult{}, f.controller.Tick(ctx))
		assert.Empty(t, f.api.Calls())
	})
}
