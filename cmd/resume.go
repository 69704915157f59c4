package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/ui"
)

// ResumeEnable turns auto-resume on for the user.
func (r *Runner) ResumeEnable(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.controller.Enable(ctx, user)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Auto-resume %s\n", ui.DescribeAutoResume(rec))
}

// ResumeDisable turns auto-resume off for the user.
func (r *Runner) ResumeDisable(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.controller.Disable(ctx, user); err != nil {
		return err
	}
	return r.writePlain("✓ Auto-resume disabled\n")
}

// ResumeStatus prints the user's auto-resume record.
func (r *Runner) ResumeStatus(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.controller.Status(ctx, user)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(rec, true)
	}
	r.printRecord(rec)
	return nil
}

func (r *Runner) printRecord(rec *models.AutoResume) {
	r.writePlain("%s%s\n", labelStyle.Render("Auto-resume"), ui.ResumeStyle(rec).Render(ui.DescribeAutoResume(rec)))
	if rec == nil {
		return
	}
	if rec.LastAttemptAt != nil {
		r.writePlain("%s%s\n", labelStyle.Render("Last attempt"), rec.LastAttemptAt.Local().Format(time.RFC1123))
	}
	if rec.NextAttemptAt != nil && rec.Status != models.ResumeDisabled {
		r.writePlain("%s%s\n", labelStyle.Render("Next attempt"), rec.NextAttemptAt.Local().Format(time.RFC1123))
	}
	if rec.LastError != "" {
		r.writePlain("%s%s\n", labelStyle.Render("Last error"), rec.LastError)
	}
}

// ResumeAttempt runs one auto-resume attempt for the user, exactly as the scheduler would.
func (r *Runner) ResumeAttempt(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.controller.Attempt(ctx, user)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	if !result.Ran {
		return r.writePlain("Skipped: %s\n", result.Skipped)
	}

	r.writePlain("Outcome: %s\n", result.Outcome)
	if result.Batch != nil {
		r.printBatch(result.Batch, s.quota.NextReset(r.clock()))
	}
	if result.BatchError != "" {
		r.writePlain("%s\n", warnStyle.Render("⚠ "+result.BatchError))
	}
	r.printRecord(result.Record)
	return nil
}
