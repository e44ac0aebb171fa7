package query

import (
	"time"

	"github.com/m-mizutani/osprey/pkg/adapter"
	"github.com/m-mizutani/osprey/pkg/alert"
	"github.com/m-mizutani/osprey/pkg/learning"
	"github.com/m-mizutani/osprey/pkg/memory"
	"github.com/m-mizutani/osprey/pkg/source"
)

// State identifies the pipeline stage a run is in.
type State string

const (
	StateParsingIntent    State = "parsing_intent"
	StateRetrievingMemory State = "retrieving_memory"
	StateRefining         State = "refining"
	StateGatheringSources State = "gathering_sources"
	StateSynthesizing     State = "synthesizing"
	StateEvaluatingAlert  State = "evaluating_alert"
	StatePersisting       State = "persisting"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

const (
	// neighborCount is how many similar past runs feed refinement.
	neighborCount = 5

	// DefaultMaxSources bounds the fan-out when the caller does not.
	DefaultMaxSources = 5

	// DefaultSourceTimeout bounds each individual source invocation.
	DefaultSourceTimeout = 15 * time.Second
)

// UseCase is the orchestrator: it sequences one query through memory
// retrieval, refinement, source fan-out, synthesis, alerting and
// persistence.
type UseCase struct {
	gemini   adapter.Gemini
	memories *memory.Store
	learner  *learning.Service
	alerts   *alert.Service
	registry *source.Registry

	retry         adapter.RetryPolicy
	sourceTimeout time.Duration
	maxSources    int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithSourceTimeout overrides the per-source invocation timeout
func WithSourceTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.sourceTimeout = d
	}
}

// WithMaxSources overrides the default fan-out width
func WithMaxSources(n int) Option {
	return func(uc *UseCase) {
		uc.maxSources = n
	}
}

// New creates the orchestrator
func New(
	gemini adapter.Gemini,
	memories *memory.Store,
	learner *learning.Service,
	alerts *alert.Service,
	registry *source.Registry,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		gemini:        gemini,
		memories:      memories,
		learner:       learner,
		alerts:        alerts,
		registry:      registry,
		retry:         adapter.DefaultRetry,
		sourceTimeout: DefaultSourceTimeout,
		maxSources:    DefaultMaxSources,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
