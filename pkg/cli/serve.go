package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/osprey/pkg/scheduler"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg      config
		seedPath string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "schedules",
			Usage:       "YAML file of schedules to seed on startup",
			Sources:     cli.EnvVars("OSPREY_SCHEDULES"),
			Destination: &seedPath,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the scheduler daemon",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = withLogger(ctx, &cfg)
			logger := logging.From(ctx)

			rt, err := cfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Seed after the signal context exists so the triggers it
			// installs stop firing on shutdown.
			sched := scheduler.New(rt.repo, rt.queries, rt.alerts, rt.reports)
			if seedPath != "" {
				if err := sched.LoadSeed(ctx, seedPath); err != nil {
					return err
				}
			}

			rt.memories.StartEviction(ctx)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			logger.Info("scheduler started")

			<-ctx.Done()
			logger.Info("shutting down")
			sched.Stop()

			return nil
		},
	}
}
