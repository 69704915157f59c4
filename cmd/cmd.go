// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
		Sources: cli.EnvVars("YTEXPORT_CONFIG"),
	}
}

func userIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "User whose export to operate on",
		Value:   "local",
		Sources: cli.EnvVars("YTEXPORT_USER"),
	}
}

// pipelineFlags are shared by every command that touches a user's export.
func pipelineFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{configFlag(), userIDFlag()}, extra...)
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create config.toml if missing, then create the database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
		},
	}
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize access to remote accounts",
		Commands: []*cli.Command{
			{
				Name:  "youtube",
				Usage: "Authorize read-only access to YouTube with OAuth2",
				Flags: []cli.Flag{
					configFlag(),
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: authTimeout,
					},
				},
				Action: r.AuthYouTube,
			},
		},
	}
}

// exportCommand groups the export pipeline operations
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "export",
		Aliases: []string{"ex"},
		Usage:   "Import videos from playlists and channels within the daily quota",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Register the playlists and channels to export",
				Flags: pipelineFlags(
					&cli.StringSliceFlag{
						Name:    "playlist",
						Aliases: []string{"p"},
						Usage:   "Playlist to export as ID or ID=Title (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "channel",
						Usage: "Channel to export as ID or ID=Title (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.ExportInit,
			},
			{
				Name:  "batch",
				Usage: "Run one batch against the next incomplete source",
				Flags: pipelineFlags(
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.ExportBatch,
			},
			{
				Name:  "run",
				Usage: "Run batches until the export completes or the daily quota is spent",
				Flags: pipelineFlags(
					&cli.IntFlag{
						Name:  "max",
						Usage: "Maximum number of batches to run (0 for no limit)",
					},
				),
				Action: r.ExportRun,
			},
			{
				Name:  "status",
				Usage: "Show export progress and quota usage",
				Flags: pipelineFlags(
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
						Value: true,
					},
				),
				Action: r.ExportStatus,
			},
			{
				Name:  "dump",
				Usage: "Write imported sources and videos to a file",
				Flags: pipelineFlags(
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: json, csv or markdown",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (use - for stdout)",
					},
				),
				Action: r.ExportDump,
			},
		},
	}
}

// resumeCommand manages quota-aware auto-resume
func resumeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Manage automatic continuation of an export after quota resets",
		Commands: []*cli.Command{
			{
				Name:   "enable",
				Usage:  "Turn auto-resume on and make it eligible immediately",
				Flags:  pipelineFlags(),
				Action: r.ResumeEnable,
			},
			{
				Name:   "disable",
				Usage:  "Turn auto-resume off",
				Flags:  pipelineFlags(),
				Action: r.ResumeDisable,
			},
			{
				Name:  "status",
				Usage: "Show the auto-resume record",
				Flags: pipelineFlags(
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.ResumeStatus,
			},
			{
				Name:  "attempt",
				Usage: "Run one auto-resume attempt now",
				Flags: pipelineFlags(
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.ResumeAttempt,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the auto-resume scheduler",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (overrides server.port)",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Serve the API without running auto-resume ticks",
			},
		},
		Action: r.Serve,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Launch the interactive export dashboard",
		Flags:  pipelineFlags(),
		Action: r.TUI,
	}
}
