package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/ytexport/internal/resume"
	"github.com/desertthunder/ytexport/internal/server"
)

// Serve runs the HTTP API and the auto-resume scheduler until interrupted. Either one failing stops both.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	host, port := s.config.Server.Host, s.config.Server.Port
	if cmd.IsSet("host") {
		host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}

	api := server.NewAPI(s.engine, s.controller, s.config.Server.StatusCacheTTL.Duration, r.logger)
	s.controller.OnProgress(api.Invalidate)
	srv := server.New(host, port, server.NewRouter(api, r.logger), r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if cmd.Bool("no-scheduler") {
		r.logger.Warn("auto-resume scheduler disabled")
	} else {
		scheduler := resume.NewScheduler(s.controller, s.config.AutoResume.TickInterval.Duration, r.logger)
		g.Go(func() error {
			return scheduler.Run(ctx)
		})
	}

	return g.Wait()
}
