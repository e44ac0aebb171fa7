package alert

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/osprey/pkg/adapter"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/notify"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
)

// DefaultDedupWindow is how long an alert suppresses similar ones.
const DefaultDedupWindow = time.Hour

// Service assesses synthesized results for urgency, suppresses
// duplicates within a rolling window and dispatches surviving alerts
// to every configured channel.
type Service struct {
	gemini   adapter.Gemini
	channels []notify.Channel
	policy   *routePolicy
	retry    adapter.RetryPolicy

	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	history []*model.Alert
}

// Option is a functional option for Service
type Option func(*Service)

// WithDedupWindow overrides the rolling deduplication window
func WithDedupWindow(d time.Duration) Option {
	return func(s *Service) {
		s.window = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPolicyDir enables rego-based channel routing from the given
// policy directory.
func WithPolicyDir(ctx context.Context, dir string) (Option, error) {
	policy, err := loadRoutePolicy(ctx, dir)
	if err != nil {
		return nil, err
	}
	return func(s *Service) {
		s.policy = policy
	}, nil
}

// New creates an alert service dispatching to the given channels
func New(gemini adapter.Gemini, channels []notify.Channel, opts ...Option) *Service {
	s := &Service{
		gemini:   gemini,
		channels: channels,
		retry:    adapter.DefaultRetry,
		window:   DefaultDedupWindow,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// dispatch sends the alert to all channels concurrently. Per-channel
// failures are logged and isolated.
func (s *Service) dispatch(ctx context.Context, alert *model.Alert, channels []notify.Channel) {
	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(ch notify.Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, alert); err != nil {
				logging.From(ctx).Warn("failed to send alert",
					"channel", ch.Name(), "alert_id", alert.ID, "error", err)
			}
		}(ch)
	}
	wg.Wait()
}
