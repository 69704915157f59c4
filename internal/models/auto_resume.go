package models

import (
	"fmt"
	"time"
)

// ResumeStatus is the state of the auto-resume state machine.
type ResumeStatus string

const (
	ResumeDisabled ResumeStatus = "disabled"
	ResumeActive   ResumeStatus = "active"
	ResumePaused   ResumeStatus = "paused"
)

// PausedReason explains why autonomous progress halted.
type PausedReason string

const (
	PausedNone           PausedReason = "none"
	PausedQuotaExceeded  PausedReason = "quota_exceeded"
	PausedTransientError PausedReason = "transient_error"
	PausedFatalError     PausedReason = "fatal_error"
)

// AutoResume is the per-user auto-resume record.
//
// Paused implies PausedUntil is set; Active implies PausedReason is [PausedNone] and PausedUntil is nil.
// Disabled keeps LastAttemptAt and NextAttemptAt so history survives. Version increments on every save.
type AutoResume struct {
	Entity
	UserID              string       `json:"user_id"`
	Status              ResumeStatus `json:"status"`
	PausedReason        PausedReason `json:"paused_reason"`
	PausedUntil         *time.Time   `json:"paused_until,omitempty"`
	LastAttemptAt       *time.Time   `json:"last_attempt_at,omitempty"`
	NextAttemptAt       *time.Time   `json:"next_attempt_at,omitempty"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastError           string       `json:"last_error,omitempty"`
	Version             int          `json:"version"`
}

// NewAutoResume creates a disabled record for userID.
func NewAutoResume(userID string, now time.Time) *AutoResume {
	return &AutoResume{
		Entity:       newEntity(now),
		UserID:       userID,
		Status:       ResumeDisabled,
		PausedReason: PausedNone,
	}
}

// Clone returns a deep copy so pure transitions never alias the input.
func (a *AutoResume) Clone() *AutoResume {
	c := *a
	c.PausedUntil = cloneTime(a.PausedUntil)
	c.LastAttemptAt = cloneTime(a.LastAttemptAt)
	c.NextAttemptAt = cloneTime(a.NextAttemptAt)
	return &c
}

func (a *AutoResume) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("auto-resume user id is required")
	}
	switch a.Status {
	case ResumeActive:
		if a.PausedReason != PausedNone || a.PausedUntil != nil {
			return fmt.Errorf("active auto-resume cannot carry a pause")
		}
	case ResumePaused:
		if a.PausedUntil == nil {
			return fmt.Errorf("paused auto-resume requires paused_until")
		}
	case ResumeDisabled:
	default:
		return fmt.Errorf("invalid auto-resume status %q", a.Status)
	}
	return nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
