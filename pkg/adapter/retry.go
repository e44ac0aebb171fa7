package adapter

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
)

// RetryPolicy retries a capability call on transient failures with
// exponential backoff plus jitter. Fatal failures return immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

// DefaultRetry is applied to reasoning and embedding calls.
var DefaultRetry = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   500 * time.Millisecond,
	MaxJitter:   200 * time.Millisecond,
}

// Do invokes fn until it succeeds, fails fatally, or attempts run out.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := p.BaseDelay * time.Duration(1<<(i-1))
			if p.MaxJitter > 0 {
				delay += time.Duration(rand.Int63n(int64(p.MaxJitter)))
			}
			logging.From(ctx).Debug("retrying after transient failure",
				"attempt", i+1, "delay", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "retry cancelled")
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, model.ErrTransient) {
			return lastErr
		}
	}

	return goerr.Wrap(lastErr, "retry attempts exhausted", goerr.V("attempts", attempts))
}
