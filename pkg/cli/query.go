package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/usecase/query"
	"github.com/urfave/cli/v3"
)

// foregroundBudget bounds an interactive query end to end.
const foregroundBudget = 30 * time.Second

func queryCommand() *cli.Command {
	var (
		cfg        config
		maxSources int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "max-sources",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of sources to consult",
			Value:       int64(query.DefaultMaxSources),
			Sources:     cli.EnvVars("OSPREY_MAX_SOURCES"),
			Destination: &maxSources,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "query",
		Usage:     "Run one query through the pipeline",
		ArgsUsage: "<query text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			queryText := strings.Join(c.Args().Slice(), " ")
			if queryText == "" {
				return goerr.New("query text is required")
			}

			ctx = withLogger(ctx, &cfg)
			rt, err := cfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			sp.Suffix = " gathering..."
			sp.Start()

			runCtx, cancel := context.WithTimeout(ctx, foregroundBudget)
			defer cancel()
			result, err := rt.queries.Execute(runCtx, query.Input{
				Query:      queryText,
				MaxSources: int(maxSources),
			})
			sp.Stop()
			if err != nil {
				return err
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "%s\n\n", result.Synthesis.Summary)
			for _, finding := range result.Synthesis.Findings {
				fmt.Fprintf(w, "- %s\n", finding)
			}
			fmt.Fprintf(w, "\nConfidence: %.2f\n", result.Synthesis.Confidence)
			if len(result.Synthesis.Sources) > 0 {
				fmt.Fprintf(w, "Sources: %s\n", strings.Join(result.Synthesis.Sources, ", "))
			}
			if result.Synthesis.Note != "" {
				fmt.Fprintf(w, "Note: %s\n", result.Synthesis.Note)
			}
			if result.AlertTriggered {
				fmt.Fprintf(w, "Alert triggered\n")
			}
			if len(result.Degraded) > 0 {
				fmt.Fprintf(w, "Degraded: %s\n", strings.Join(result.Degraded, ", "))
			}
			if result.MemoryID != "" {
				fmt.Fprintf(w, "Memory ID: %s\n", result.MemoryID)
			}

			return nil
		},
	}
}
