package resume

import (
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytexport/internal/models"
)

var (
	// ErrNotEligible is returned when an attempt starts before the record allows it.
	ErrNotEligible = errors.New("auto-resume not eligible for an attempt")
	// ErrNotRunning is returned when a batch outcome is applied to a record that never started an attempt.
	ErrNotRunning = errors.New("auto-resume has no attempt in progress")
)

// EventKind names the inputs of the auto-resume state machine.
type EventKind int

const (
	EventEnable EventKind = iota
	EventDisable
	EventStarted
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventEnable:
		return "enable"
	case EventDisable:
		return "disable"
	case EventStarted:
		return "started"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Outcome classifies a finished batch.
type Outcome int

const (
	OutcomeProgress Outcome = iota // batch ran, work and quota remain
	OutcomeComplete
	OutcomeQuotaExhausted
	OutcomeTransient
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProgress:
		return "progress"
	case OutcomeComplete:
		return "complete"
	case OutcomeQuotaExhausted:
		return "quota_exhausted"
	case OutcomeTransient:
		return "transient_error"
	case OutcomeFatal:
		return "fatal_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Event is one input to [Transition].
//
// Outcome, Err and QuotaResetsAt are only read for [EventFinished].
type Event struct {
	Kind          EventKind
	Outcome       Outcome
	Err           error
	QuotaResetsAt time.Time
}

// Policy holds the tunables of the state machine.
type Policy struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Backoff returns the pause after the n-th consecutive transient failure: base doubled n-1 times, capped at max.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BackoffBase
	for i := 1; i < n; i++ {
		if d >= p.BackoffMax/2 {
			return p.BackoffMax
		}
		d *= 2
	}
	return min(d, p.BackoffMax)
}

// Eligible reports whether an attempt may start for rec at now.
func Eligible(rec *models.AutoResume, now time.Time) bool {
	if rec == nil {
		return false
	}
	switch rec.Status {
	case models.ResumeActive:
		return true
	case models.ResumePaused:
		return rec.PausedUntil != nil && !now.Before(*rec.PausedUntil)
	default:
		return false
	}
}

// Transition applies ev to rec and returns the next record. rec is never modified.
//
// Every state change of an auto-resume record goes through here, whether the trigger is a user, the HTTP API or
// the scheduler.
func Transition(rec *models.AutoResume, ev Event, now time.Time, p Policy) (*models.AutoResume, error) {
	next := rec.Clone()
	next.SetUpdatedAt(now)

	switch ev.Kind {
	case EventEnable:
		activate(next)
		next.NextAttemptAt = &now
		next.ConsecutiveFailures = 0
		next.LastError = ""
	case EventDisable:
		if rec.Status == models.ResumeDisabled {
			return rec.Clone(), nil
		}
		disable(next, models.PausedNone)
	case EventStarted:
		if !Eligible(rec, now) {
			return nil, fmt.Errorf("%w: status %s", ErrNotEligible, rec.Status)
		}
		activate(next)
		next.LastAttemptAt = &now
	case EventFinished:
		if rec.Status != models.ResumeActive {
			return nil, fmt.Errorf("%w: status %s", ErrNotRunning, rec.Status)
		}
		finish(next, ev, now, p)
	default:
		return nil, fmt.Errorf("unknown auto-resume event %s", ev.Kind)
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

func finish(next *models.AutoResume, ev Event, now time.Time, p Policy) {
	switch ev.Outcome {
	case OutcomeComplete:
		disable(next, models.PausedNone)
		next.ConsecutiveFailures = 0
		next.LastError = ""
	case OutcomeQuotaExhausted:
		until := ev.QuotaResetsAt
		if !until.After(now) {
			until = now.Add(p.BackoffBase)
		}
		pause(next, models.PausedQuotaExceeded, until)
		next.ConsecutiveFailures = 0
		next.LastError = ""
	case OutcomeTransient:
		next.ConsecutiveFailures++
		pause(next, models.PausedTransientError, now.Add(p.Backoff(next.ConsecutiveFailures)))
		next.LastError = errString(ev.Err)
	case OutcomeFatal:
		disable(next, models.PausedFatalError)
		next.LastError = errString(ev.Err)
	default:
		next.NextAttemptAt = &now
		next.ConsecutiveFailures = 0
		next.LastError = ""
	}
}

func activate(rec *models.AutoResume) {
	rec.Status = models.ResumeActive
	rec.PausedReason = models.PausedNone
	rec.PausedUntil = nil
}

func pause(rec *models.AutoResume, reason models.PausedReason, until time.Time) {
	rec.Status = models.ResumePaused
	rec.PausedReason = reason
	rec.PausedUntil = &until
	rec.NextAttemptAt = &until
}

func disable(rec *models.AutoResume, reason models.PausedReason) {
	rec.Status = models.ResumeDisabled
	rec.PausedReason = reason
	rec.PausedUntil = nil
	rec.NextAttemptAt = nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
