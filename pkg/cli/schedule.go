package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/scheduler"
	"github.com/urfave/cli/v3"
)

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage recurring queries",
		Commands: []*cli.Command{
			scheduleListCommand(),
			scheduleCreateCommand(),
			scheduleUpdateCommand(),
			scheduleDeleteCommand(),
		},
	}
}

// newScheduler builds a scheduler for CRUD use only; triggers are not
// started here, the serve command owns execution.
func newScheduler(rt *runtime) *scheduler.Scheduler {
	return scheduler.New(rt.repo, rt.queries, rt.alerts, rt.reports)
}

func scheduleListCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "list",
		Usage: "List all schedules",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = withLogger(ctx, &cfg)
			rt, err := cfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			schedules, err := newScheduler(rt).List(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(schedules) == 0 {
				fmt.Fprintf(w, "No schedules\n")
				return nil
			}

			for _, s := range schedules {
				state := "disabled"
				if s.Enabled {
					state = "enabled"
				}
				fmt.Fprintf(w, "%s  [%s]  %q  cron=%q  runs=%d\n",
					s.ID, state, s.QueryText, s.CronExpression, s.ExecutionCount)
			}
			return nil
		},
	}
}

func scheduleCreateCommand() *cli.Command {
	var (
		cfg           config
		queryText     string
		cronExpr      string
		disabled      bool
		alertOnChange bool
		maxSources    int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Query text to run",
			Required:    true,
			Destination: &queryText,
		},
		&cli.StringFlag{
			Name:        "cron",
			Aliases:     []string{"c"},
			Usage:       "Cron expression (5 fields)",
			Required:    true,
			Destination: &cronExpr,
		},
		&cli.BoolFlag{
			Name:        "disabled",
			Usage:       "Create without installing a trigger",
			Destination: &disabled,
		},
		&cli.BoolFlag{
			Name:        "alert-on-change",
			Usage:       "Alert when the result drifts between runs",
			Destination: &alertOnChange,
		},
		&cli.IntFlag{
			Name:        "max-sources",
			Usage:       "Maximum sources per execution",
			Destination: &maxSources,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "create",
		Usage: "Create a recurring query",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = withLogger(ctx, &cfg)
			rt, err := cfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			sched, err := newScheduler(rt).Create(ctx, scheduler.CreateInput{
				QueryText:      queryText,
				CronExpression: cronExpr,
				Enabled:        !disabled,
				AlertOnChange:  alertOnChange,
				MaxSources:     int(maxSources),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Created schedule %s\n", sched.ID)
			return nil
		},
	}
}

func scheduleUpdateCommand() *cli.Command {
	var (
		cfg       config
		id        string
		queryText string
		cronExpr  string
		enable    bool
		disable   bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Aliases:     []string{"i"},
			Usage:       "Schedule ID",
			Required:    true,
			Destination: &id,
		},
		&cli.StringFlag{
			Name:        "query",
			Usage:       "New query text",
			Destination: &queryText,
		},
		&cli.StringFlag{
			Name:        "cron",
			Usage:       "New cron expression",
			Destination: &cronExpr,
		},
		&cli.BoolFlag{
			Name:        "enable",
			Usage:       "Enable the schedule",
			Destination: &enable,
		},
		&cli.BoolFlag{
			Name:        "disable",
			Usage:       "Disable the schedule (keeps the record)",
			Destination: &disable,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "update",
		Usage: "Update a recurring query",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = withLogger(ctx, &cfg)
			rt, err := cfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			var input scheduler.UpdateInput
			if queryText != "" {
				input.QueryText = &queryText
			}
			if cronExpr != "" {
				input.CronExpression = &cronExpr
			}
			if enable {
				v := true
				input.Enabled = &v
			}
			if disable {
				v := false
				input.Enabled = &v
			}

			sched, err := newScheduler(rt).Update(ctx, model.ScheduleID(id), input)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Updated schedule %s\n", sched.ID)
			return nil
		},
	}
}

func scheduleDeleteCommand() *cli.Command {
	var (
		cfg config
		id  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Aliases:     []string{"i"},
			Usage:       "Schedule ID",
			Required:    true,
			Destination: &id,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a recurring query",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = withLogger(ctx, &cfg)
			rt, err := cfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := newScheduler(rt).Delete(ctx, model.ScheduleID(id)); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Deleted schedule %s\n", id)
			return nil
		},
	}
}
