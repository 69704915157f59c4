package tasks

import (
	"fmt"
	"time"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unbounded
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	RunBatch Phase = iota
	BatchDone
	BatchFailed
	QuotaExhausted
	ExportComplete
	LeaseHeld
)

func (p Phase) String() string {
	switch p {
	case RunBatch:
		return "run_batch"
	case BatchDone:
		return "batch_done"
	case BatchFailed:
		return "batch_failed"
	case QuotaExhausted:
		return "quota_exhausted"
	case ExportComplete:
		return "export_complete"
	case LeaseHeld:
		return "lease_held"
	default:
		return ""
	}
}

func stepLabel(step, total int) string {
	if total > 0 {
		return fmt.Sprintf("[%d/%d]", step, total)
	}
	return fmt.Sprintf("[%d]", step)
}

func runBatchUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RunBatch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s Running batch...", stepLabel(step, total)),
	}
}

func batchDoneUpdate(step, total int, res *BatchResult) ProgressUpdate {
	msg := fmt.Sprintf("%s ✓ %s %s: %d new videos", stepLabel(step, total), res.SourceType, res.SourceTitle, res.VideosImported)
	if res.SourceID == "" {
		msg = fmt.Sprintf("%s no source fetched", stepLabel(step, total))
	}
	return ProgressUpdate{
		Phase:   BatchDone,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s (quota %d/%d)", msg, res.QuotaUsedToday, res.QuotaCeiling),
		Data:    res,
	}
}

func batchFailedUpdate(step, total int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BatchFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s ✗ %v", stepLabel(step, total), err),
	}
}

func quotaExhaustedUpdate(step, total int, resetAt time.Time) ProgressUpdate {
	return ProgressUpdate{
		Phase:   QuotaExhausted,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Daily quota exhausted, resets at %s", resetAt.Format(time.RFC3339)),
		Data:    resetAt,
	}
}

func exportCompleteUpdate(step, total, imported int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportComplete,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Export complete (%d new videos this run)", imported),
	}
}

func leaseHeldUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   LeaseHeld,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("%s another export is already running for this user", stepLabel(step, total)),
	}
}
