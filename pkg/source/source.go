package source

import (
	"context"

	"github.com/m-mizutani/osprey/pkg/model"
)

// Params carries the refined query handed to every source during the
// fan-out stage.
type Params struct {
	Query    string
	Keywords []string
	Intent   *model.Intent
}

// Source is a named external data provider. Implementations must honor
// context cancellation; the pipeline bounds every invocation with a
// per-call timeout.
type Source interface {
	// Name returns the identifier used for prioritization and results
	Name() string

	// Invoke queries the provider and returns a structured result
	Invoke(ctx context.Context, params *Params) (any, error)
}
