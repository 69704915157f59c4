package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytexport/internal/shared"
)

// SetupDatabase writes config.toml from the template when it is missing, then creates the database and runs
// migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if r.config == nil {
		if _, err := os.Stat(configPath); err != nil {
			r.logger.Info("config file not found, creating from template", "path", configPath)
			if err := shared.CreateConfigFile(configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else {
				r.logger.Info("config file created", "path", configPath)
			}
		}
	}

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	r.logger.Infof("setup complete for database: %v", s.config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", s.config.Database.Path)
	return nil
}
