package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/osprey/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "osprey",
		Usage: "Adaptive information-gathering pipeline",
		Commands: []*cli.Command{
			queryCommand(),
			feedbackCommand(),
			scheduleCommand(),
			statsCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// withLogger installs the configured logger into the context
func withLogger(ctx context.Context, cfg *config) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}
