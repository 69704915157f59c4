package resume

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/quota"
	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/shared"
	"github.com/desertthunder/ytexport/internal/tasks"
)

const (
	defaultBackoffBase       = time.Minute
	defaultBackoffMax        = time.Hour
	defaultMaxBatchesPerTick = 50
)

// SkipReason says why an attempt did not run a batch.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipLeaseHeld   SkipReason = "lease_held"
	SkipNoRecord    SkipReason = "no_record"
	SkipNotEligible SkipReason = "not_eligible"
	SkipSuperseded  SkipReason = "superseded"
)

// AttemptResult describes one call to [Controller.Attempt].
//
// A skipped attempt changed nothing. When Ran is true, Record is the saved state and Outcome the batch
// classification; BatchError carries the message of a transient or fatal remote failure.
type AttemptResult struct {
	Ran        bool               `json:"ran"`
	Skipped    SkipReason         `json:"skipped,omitempty"`
	Outcome    string             `json:"outcome,omitempty"`
	Batch      *tasks.BatchResult `json:"batch,omitempty"`
	BatchError string             `json:"batchError,omitempty"`
	Record     *models.AutoResume `json:"record,omitempty"`
}

// TickResult summarizes one scheduler pass.
type TickResult struct {
	Due      int `json:"due"`
	Batches  int `json:"batches"`
	Failures int `json:"failures"`
}

// Resumer is the auto-resume surface exposed to the CLI, HTTP API and dashboard.
type Resumer interface {
	Enable(ctx context.Context, userID string) (*models.AutoResume, error)
	Disable(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*models.AutoResume, error)
	Attempt(ctx context.Context, userID string) (*AttemptResult, error)
}

var _ Resumer = (*Controller)(nil)

// Deps are the collaborators of a [Controller].
type Deps struct {
	DB                *sql.DB
	Runner            tasks.BatchRunner
	Quota             *quota.Tracker
	Locker            *tasks.Locker
	Policy            Policy
	MaxBatchesPerTick int
	Clock             shared.Clock
	Logger            *log.Logger
}

// Controller drives each user's export forward without user involvement.
//
// Attempts for one user are serialized by the export lease, which is held from before the record is read until the
// resulting transition is saved. Enable and Disable do not take the lease; they rely on the record version, so a
// disable issued during an attempt wins and the attempt's save is dropped.
type Controller struct {
	db        *sql.DB
	records   *repositories.AutoResumeRepository
	runner    tasks.BatchRunner
	quota     *quota.Tracker
	locker    *tasks.Locker
	policy    Policy
	maxPerRun int
	clock     shared.Clock
	logger    *log.Logger

	onProgress func(userID string)
}

// NewController creates a Controller. Zero policy values fall back to a one minute base and a one hour cap.
func NewController(d Deps) *Controller {
	if d.Clock == nil {
		d.Clock = shared.SystemClock
	}
	if d.Logger == nil {
		d.Logger = shared.NewLogger(nil)
	}
	if d.Policy.BackoffBase <= 0 {
		d.Policy.BackoffBase = defaultBackoffBase
	}
	if d.Policy.BackoffMax < d.Policy.BackoffBase {
		d.Policy.BackoffMax = max(defaultBackoffMax, d.Policy.BackoffBase)
	}
	if d.MaxBatchesPerTick <= 0 {
		d.MaxBatchesPerTick = defaultMaxBatchesPerTick
	}

	return &Controller{
		db:        d.DB,
		records:   repositories.NewAutoResumeRepository(d.DB),
		runner:    d.Runner,
		quota:     d.Quota,
		locker:    d.Locker,
		policy:    d.Policy,
		maxPerRun: d.MaxBatchesPerTick,
		clock:     d.Clock,
		logger:    shared.WithLogger(d.Logger, "component", "auto-resume"),
	}
}

// OnProgress registers fn to be called after every attempt that ran a batch, whether or not its save won.
// It must be set before attempts start.
func (c *Controller) OnProgress(fn func(userID string)) {
	c.onProgress = fn
}

// Enable turns auto-resume on for the user, creating the record if absent and clearing any pause.
func (c *Controller) Enable(ctx context.Context, userID string) (*models.AutoResume, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	var saved *models.AutoResume
	err := repositories.InTx(ctx, c.db, func(tx *sql.Tx) error {
		records := repositories.NewAutoResumeRepository(tx)
		now := c.clock()

		rec, err := records.GetByUser(ctx, userID)
		created := false
		switch {
		case errors.Is(err, shared.ErrNotFound):
			rec = models.NewAutoResume(userID, now)
			created = true
		case err != nil:
			return err
		}

		next, err := Transition(rec, Event{Kind: EventEnable}, now, c.policy)
		if err != nil {
			return err
		}
		if created {
			err = records.Create(ctx, next)
		} else {
			err = records.Update(ctx, next)
		}
		if err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("auto-resume enabled", "user", userID)
	return saved, nil
}

// Disable turns auto-resume off. A user without a record is already disabled.
func (c *Controller) Disable(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	err := repositories.InTx(ctx, c.db, func(tx *sql.Tx) error {
		records := repositories.NewAutoResumeRepository(tx)

		rec, err := records.GetByUser(ctx, userID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Status == models.ResumeDisabled {
			return nil
		}

		next, err := Transition(rec, Event{Kind: EventDisable}, c.clock(), c.policy)
		if err != nil {
			return err
		}
		return records.Update(ctx, next)
	})
	if err != nil {
		return err
	}

	c.logger.Info("auto-resume disabled", "user", userID)
	return nil
}

// Status returns the user's record, or nil when auto-resume was never enabled.
func (c *Controller) Status(ctx context.Context, userID string) (*models.AutoResume, error) {
	rec, err := c.records.GetByUser(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Attempt runs one batch for the user if the record allows it and saves the resulting transition.
//
// Remote failures are absorbed into the saved state. Only persistence failures are returned, and in that case the
// record is left as it was.
func (c *Controller) Attempt(ctx context.Context, userID string) (*AttemptResult, error) {
	leaseCtx, release, ok, err := c.locker.TryLock(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Debug("attempt skipped, lease held", "user", userID)
		return &AttemptResult{Skipped: SkipLeaseHeld}, nil
	}
	defer release()

	rec, err := c.records.GetByUser(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return &AttemptResult{Skipped: SkipNoRecord}, nil
	}
	if err != nil {
		return nil, err
	}

	now := c.clock()
	if !Eligible(rec, now) {
		return &AttemptResult{Skipped: SkipNotEligible, Record: rec}, nil
	}

	running, err := Transition(rec, Event{Kind: EventStarted}, now, c.policy)
	if err != nil {
		return nil, err
	}

	batch, batchErr := c.runner.RunOneBatch(leaseCtx, userID)
	if c.onProgress != nil {
		defer c.onProgress(userID)
	}
	ev, err := c.classify(batch, batchErr)
	if err != nil {
		return nil, err
	}

	done := c.clock()
	next, err := Transition(running, ev, done, c.policy)
	if err != nil {
		return nil, err
	}

	if err := c.records.Update(ctx, next); err != nil {
		if errors.Is(err, shared.ErrStaleRecord) {
			c.logger.Info("attempt superseded by a concurrent change", "user", userID)
			return &AttemptResult{Ran: true, Skipped: SkipSuperseded, Batch: batch, Outcome: ev.Outcome.String()}, nil
		}
		return nil, err
	}

	result := &AttemptResult{Ran: true, Outcome: ev.Outcome.String(), Batch: batch, Record: next}
	if batchErr != nil {
		result.BatchError = batchErr.Error()
	}

	c.logger.Info("attempt finished",
		"user", userID,
		"outcome", ev.Outcome,
		"status", next.Status,
		"paused_until", next.PausedUntil,
	)
	return result, nil
}

// classify maps a batch result onto a state machine event. Errors that are neither transient nor fatal are
// persistence failures and come back unchanged.
func (c *Controller) classify(batch *tasks.BatchResult, err error) (Event, error) {
	ev := Event{Kind: EventFinished}

	switch {
	case errors.Is(err, shared.ErrFatal):
		ev.Outcome = OutcomeFatal
		ev.Err = err
	case errors.Is(err, shared.ErrTransient):
		ev.Outcome = OutcomeTransient
		ev.Err = err
	case err != nil:
		return ev, err
	case batch.ExportComplete:
		ev.Outcome = OutcomeComplete
	case batch.ShouldStop:
		ev.Outcome = OutcomeQuotaExhausted
		ev.QuotaResetsAt = c.quota.NextReset(c.clock())
	default:
		ev.Outcome = OutcomeProgress
	}
	return ev, nil
}

// Tick attempts every due user, repeating while a user's record stays active, up to the per-tick batch limit.
// Failures are logged and counted, never returned.
func (c *Controller) Tick(ctx context.Context) TickResult {
	var result TickResult

	records, err := c.records.ListEnabled(ctx)
	if err != nil {
		c.logger.Error("failed to list auto-resume records", "error", err)
		result.Failures++
		return result
	}

	now := c.clock()
	for _, rec := range records {
		if !Eligible(rec, now) {
			continue
		}
		result.Due++

		for range c.maxPerRun {
			if ctx.Err() != nil {
				return result
			}

			attempt, err := c.Attempt(ctx, rec.UserID)
			if err != nil {
				c.logger.Error("auto-resume attempt failed", "user", rec.UserID, "error", err)
				result.Failures++
				break
			}
			if !attempt.Ran {
				break
			}
			result.Batches++
			if attempt.Record == nil || attempt.Record.Status != models.ResumeActive {
				break
			}
		}
	}

	c.logger.Debug("tick complete", "due", result.Due, "batches", result.Batches, "failures", result.Failures)
	return result
}
