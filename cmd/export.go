package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytexport/internal/formatter"
	"github.com/desertthunder/ytexport/internal/models"
	"github.com/desertthunder/ytexport/internal/shared"
	"github.com/desertthunder/ytexport/internal/tasks"
	"github.com/desertthunder/ytexport/internal/ui"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#626262")).Width(18)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
)

// parseRefs reads ID or ID=Title values from a repeatable flag.
func parseRefs(values []string) ([]models.SourceRef, error) {
	refs := make([]models.SourceRef, 0, len(values))
	for _, v := range values {
		id, title, _ := strings.Cut(v, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: empty source id in %q", shared.ErrInvalidArgument, v)
		}
		refs = append(refs, models.SourceRef{ExternalID: id, Title: strings.TrimSpace(title)})
	}
	return refs, nil
}

// ExportInit registers the selected playlists and channels for the user.
func (r *Runner) ExportInit(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	playlists, err := parseRefs(cmd.StringSlice("playlist"))
	if err != nil {
		return err
	}
	channels, err := parseRefs(cmd.StringSlice("channel"))
	if err != nil {
		return err
	}
	if len(playlists)+len(channels) == 0 {
		return fmt.Errorf("%w: at least one --playlist or --channel", shared.ErrMissingArgument)
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.engine.InitExport(ctx, user, playlists, channels)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	r.writePlain("✓ Registered %d sources (%d playlists, %d channels)",
		result.TotalSources, result.PlaylistSources, result.ChannelSources)
	if result.AlreadyCompleted > 0 {
		r.writePlain(" (%d already complete)", result.AlreadyCompleted)
	}
	return r.writePlain("\n")
}

// ExportBatch runs one batch for the user.
func (r *Runner) ExportBatch(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.engine.RunExportBatch(ctx, user)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	r.printBatch(result, s.quota.NextReset(r.clock()))
	return nil
}

func (r *Runner) printBatch(result *tasks.BatchResult, resetsAt time.Time) {
	if result.SourceID != "" {
		r.writePlain("%s %s: %d videos imported", result.SourceType, result.SourceTitle, result.VideosImported)
		if result.HasMore {
			r.writePlain(" (more remaining)")
		}
		r.writePlain("\n")
	}
	r.writePlain("Quota: %d/%d\n", result.QuotaUsedToday, result.QuotaCeiling)

	switch {
	case result.LeaseHeld():
		r.writePlain("%s\n", warnStyle.Render("⚠ Another export batch is already running, nothing done"))
	case result.ExportComplete:
		r.writePlain("%s\n", okStyle.Render("✓ Export complete"))
	case result.QuotaExhausted():
		r.writePlain("%s\n", warnStyle.Render("⚠ Daily quota exhausted, resets at "+resetsAt.Local().Format(time.RFC1123)))
	}
}

// ExportRun drains the user's export until it completes, the quota runs out or --max batches ran.
func (r *Runner) ExportRun(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
	}()

	result, err := s.engine.Drain(ctx, progress, user, cmd.Int("max"))
	close(progress)
	<-done

	if err != nil {
		return err
	}

	r.writePlainln("%d batches, %d videos imported", result.Batches, result.VideosImported)
	if result.Last != nil {
		r.printBatch(result.Last, s.quota.NextReset(r.clock()))
	}
	return nil
}

// ExportStatus prints the user's export progress.
func (r *Runner) ExportStatus(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := s.engine.Status(ctx, user)
	if err != nil {
		return err
	}
	rec, err := s.controller.Status(ctx, user)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			*tasks.ExportStatus
			AutoResume *models.AutoResume `json:"autoResume"`
		}{status, rec}, cmd.Bool("pretty"))
	}

	row := func(label, value string) {
		r.writePlain("%s%s\n", labelStyle.Render(label), value)
	}

	r.writePlainHeader("Export status for " + user)
	row("Sources", fmt.Sprintf("%d total, %d complete, %d in progress, %d pending",
		status.TotalSources, status.CompletedSources, status.InProgressSources, status.PendingSources))
	row("Videos", fmt.Sprintf("%d imported, %d English", status.TotalVideosImported, status.EnglishVideosCount))
	row("Quota", fmt.Sprintf("%d/%d used, resets %s",
		status.QuotaUsedToday, status.QuotaCeiling, status.QuotaResetsAt.Local().Format(time.RFC1123)))
	if status.LastImportedAt != nil {
		row("Last import", status.LastImportedAt.Local().Format(time.RFC1123))
	}
	row("Auto-resume", ui.ResumeStyle(rec).Render(ui.DescribeAutoResume(rec)))

	if !status.HasIncompleteWork && status.TotalSources > 0 {
		r.writePlain("%s\n", okStyle.Render("✓ All sources exported"))
	}
	return nil
}

// ExportDump writes the user's sources and imported videos to a file, or stdout with --output -.
func (r *Runner) ExportDump(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	criteria := map[string]any{"user_id": user}
	sources, err := s.sources.List(ctx, criteria)
	if err != nil {
		return err
	}
	videos, err := s.videos.List(ctx, criteria)
	if err != nil {
		return err
	}

	dump := &formatter.Dump{
		UserID:      user,
		GeneratedAt: r.clock().UTC(),
		Sources:     sources,
		Videos:      videos,
	}

	output := cmd.String("output")
	if output == "-" {
		return formatter.Write(r.output, dump, format)
	}

	path, err := formatter.WriteFile(dump, format, output)
	if err != nil {
		return err
	}
	r.logger.Info("dump written", "path", path, "videos", len(videos))
	return r.writePlain("✓ Wrote %d videos from %d sources to %s\n", len(videos), len(sources), path)
}
