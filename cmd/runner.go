package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/ytexport/internal/quota"
	"github.com/desertthunder/ytexport/internal/repositories"
	"github.com/desertthunder/ytexport/internal/resume"
	"github.com/desertthunder/ytexport/internal/services"
	"github.com/desertthunder/ytexport/internal/shared"
	"github.com/desertthunder/ytexport/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	api         services.SourceAPI
	httpClient  *http.Client
	clock       shared.Clock
	logger      *log.Logger
	output      io.Writer
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// A nil Config is loaded from the --config flag of each command. A nil API builds the YouTube client from
// the loaded config.
type RunnerOpts struct {
	Config      *shared.Config
	API         services.SourceAPI
	HTTPClient  *http.Client
	Clock       shared.Clock
	Logger      *log.Logger
	Output      io.Writer
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		api:         opts.API,
		httpClient:  opts.HTTPClient,
		clock:       opts.Clock,
		logger:      opts.Logger,
		output:      opts.Output,
		openBrowser: opts.OpenBrowser,
	}
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, exportCommand, resumeCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig returns the injected config, or reads the file named by --config, falling back to defaults
// when it does not exist.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err != nil {
		r.logger.Debug("config file not found, using defaults", "path", configPath)
		return shared.DefaultConfig(), nil
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// stack is the wired export pipeline for one command invocation.
type stack struct {
	config     *shared.Config
	db         *sql.DB
	quota      *quota.Tracker
	engine     *tasks.ExportEngine
	controller *resume.Controller
	sources    *repositories.SourceRepository
	videos     *repositories.VideoRepository
}

func (s *stack) Close() error {
	return s.db.Close()
}

// open loads config, opens and migrates the database and wires the engine and auto-resume controller.
func (r *Runner) open(ctx context.Context, cmd *cli.Command) (*stack, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	tracker, err := quota.NewTracker(repositories.NewQuotaRepository(db), config.Quota, r.clock)
	if err != nil {
		db.Close()
		return nil, err
	}

	api := r.api
	if api == nil {
		api = services.NewYouTubeService(services.YouTubeOptsFromConfig(config, r.youtubeClient(ctx, config), r.logger))
	}

	locker := tasks.NewLocker(db, config.AutoResume.LeaseTTL.Duration, r.clock, r.logger)
	engine := tasks.NewExportEngine(tasks.Deps{
		DB:     db,
		API:    api,
		Quota:  tracker,
		Locker: locker,
		Clock:  r.clock,
		Logger: r.logger,
	})
	controller := resume.NewController(resume.Deps{
		DB:     db,
		Runner: engine,
		Quota:  tracker,
		Locker: locker,
		Policy: resume.Policy{
			BackoffBase: config.AutoResume.BackoffBase.Duration,
			BackoffMax:  config.AutoResume.BackoffMax.Duration,
		},
		MaxBatchesPerTick: config.AutoResume.MaxBatchesPerTick,
		Clock:             r.clock,
		Logger:            r.logger,
	})

	return &stack{
		config:     config,
		db:         db,
		quota:      tracker,
		engine:     engine,
		controller: controller,
		sources:    repositories.NewSourceRepository(db),
		videos:     repositories.NewVideoRepository(db),
	}, nil
}

// youtubeClient returns an OAuth client when a token has been saved by `auth youtube`, otherwise nil so
// the service falls back to the API key.
func (r *Runner) youtubeClient(ctx context.Context, config *shared.Config) *http.Client {
	creds := config.Credentials.YouTube
	oauthConfig, err := services.NewOAuthConfig(creds)
	if err != nil {
		if creds.APIKey == "" {
			r.logger.Warn("no youtube credentials configured, remote calls will fail")
		}
		return nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	client, err := services.NewOAuthClient(ctx, oauthConfig, creds.TokenPath)
	if err != nil {
		r.logger.Debug("youtube oauth token unavailable, using api key", "error", err)
		return nil
	}
	return client
}

func userFlag(cmd *cli.Command) (string, error) {
	user := cmd.String("user")
	if user == "" {
		return "", fmt.Errorf("%w: --user", shared.ErrMissingArgument)
	}
	return user, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
