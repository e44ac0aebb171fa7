package query

import (
	"context"
	"time"

	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/source"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// gather invokes every selected source concurrently and waits for all
// of them to settle. A source that errors or times out is recorded as
// failed; it never aborts the run. Caller context cancellation
// propagates to every in-flight invocation.
func (uc *UseCase) gather(ctx context.Context, names []string, params *source.Params) []*model.SourceResult {
	results := make([]*model.SourceResult, len(names))

	g := new(errgroup.Group)
	for i, name := range names {
		g.Go(func() error {
			results[i] = uc.invokeOne(ctx, name, params)
			return nil
		})
	}
	// Join barrier: the pipeline proceeds once every source settled.
	_ = g.Wait()

	return results
}

func (uc *UseCase) invokeOne(ctx context.Context, name string, params *source.Params) *model.SourceResult {
	result := &model.SourceResult{Source: name}
	started := time.Now()

	src, err := uc.registry.Get(name)
	if err != nil {
		result.Err = err
		result.Elapsed = time.Since(started)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.sourceTimeout)
	defer cancel()

	data, err := src.Invoke(callCtx, params)
	result.Elapsed = time.Since(started)
	if err != nil {
		logging.From(ctx).Warn("source invocation failed",
			"source", name, "elapsed", result.Elapsed, "error", err)
		result.Err = err
		uc.registry.Report(name, false)
		return result
	}

	result.Data = data
	uc.registry.Report(name, true)
	return result
}
