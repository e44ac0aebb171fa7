package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func statsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "stats",
		Usage: "Show learning and pipeline statistics",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = withLogger(ctx, &cfg)
			rt, err := cfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			snapshot, err := rt.stats.Collect(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "Queries processed:  %d\n", snapshot.TotalProcessed)
			fmt.Fprintf(w, "Average relevance:  %.2f\n", snapshot.AverageRelevance)
			fmt.Fprintf(w, "Average confidence: %.2f\n", snapshot.AverageConfidence)
			fmt.Fprintf(w, "High quality:       %d\n", snapshot.HighQualityCount)
			fmt.Fprintf(w, "Improvement trend:  %+.2f\n", snapshot.ImprovementTrend)
			fmt.Fprintf(w, "Alert threshold:    %.2f\n", snapshot.CurrentThreshold)

			if len(snapshot.SourcePriorities) > 0 {
				fmt.Fprintf(w, "\nSource priorities:\n")
				for _, s := range snapshot.SourcePriorities {
					fmt.Fprintf(w, "  %-24s %.2f\n", s.Name, s.Priority)
				}
			}
			return nil
		},
	}
}
