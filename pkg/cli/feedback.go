package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/urfave/cli/v3"
)

func feedbackCommand() *cli.Command {
	var (
		cfg      config
		memoryID string
		score    float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "id",
			Aliases:     []string{"i"},
			Usage:       "Memory ID to score",
			Required:    true,
			Destination: &memoryID,
		},
		&cli.FloatFlag{
			Name:        "score",
			Aliases:     []string{"s"},
			Usage:       "Relevance score in [0,1]",
			Required:    true,
			Destination: &score,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "feedback",
		Usage: "Record relevance feedback for a past query",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = withLogger(ctx, &cfg)
			rt, err := cfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.feedback.Submit(ctx, model.MemoryID(memoryID), score); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Recorded relevance %.2f for %s\n", score, memoryID)
			return nil
		},
	}
}
