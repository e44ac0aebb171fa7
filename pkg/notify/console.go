package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
)

// Console writes alerts to a terminal-friendly text stream.
type Console struct {
	output io.Writer
}

// NewConsole creates a console channel. A nil writer means stdout.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{output: w}
}

func (c *Console) Name() string {
	return "console"
}

func (c *Console) Send(ctx context.Context, alert *model.Alert) error {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(alert.Severity)), alert.Title)
	fmt.Fprintf(&b, "%s\n", alert.Message)
	for _, point := range alert.KeyPoints {
		fmt.Fprintf(&b, "  - %s\n", point)
	}
	if len(alert.Sources) > 0 {
		fmt.Fprintf(&b, "  sources: %s\n", strings.Join(alert.Sources, ", "))
	}

	if _, err := io.WriteString(c.output, b.String()); err != nil {
		return goerr.Wrap(err, "failed to write alert to console")
	}
	return nil
}
