package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytexport/internal/shared"
	"github.com/desertthunder/ytexport/internal/ui"
)

// TUI launches the interactive export dashboard.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	user, err := userFlag(cmd)
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/ytexport-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	model := ui.NewModel(ctx, user, s.engine, s.controller, s.sources)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
