package query

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/source"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
)

// Input is one query submission.
type Input struct {
	Query      string
	MaxSources int
}

// Execute runs the full pipeline for one query. Early stages degrade
// gracefully; only an unusable query or a cancelled context fail the
// run outright.
func (uc *UseCase) Execute(ctx context.Context, input Input) (*model.QueryResult, error) {
	if input.Query == "" {
		return nil, goerr.Wrap(model.ErrValidation, "query is empty")
	}

	logger := logging.From(ctx)
	result := &model.QueryResult{
		Query:     input.Query,
		StartedAt: time.Now(),
	}

	state := StateParsingIntent
	logger.Debug("pipeline state", "state", state)
	intent, err := uc.parseIntent(ctx, input.Query)
	if err != nil {
		// Proceed with the raw query; intent only narrows sources.
		logger.Warn("intent parsing degraded", "error", err)
		result.Degraded = append(result.Degraded, "intent")
	}
	result.Intent = intent

	state = StateRetrievingMemory
	logger.Debug("pipeline state", "state", state)
	var embedding firestore.Vector32
	var neighbors []*model.Neighbor
	if vec, err := uc.embed(ctx, input.Query); err != nil {
		logger.Warn("memory retrieval degraded", "error", err)
		result.Degraded = append(result.Degraded, "memory")
	} else {
		embedding = vec
		neighbors, err = uc.memories.FindSimilar(ctx, embedding, neighborCount, 0.0)
		if err != nil {
			logger.Warn("memory retrieval degraded", "error", err)
			result.Degraded = append(result.Degraded, "memory")
			neighbors = nil
		}
	}
	result.Neighbors = neighbors

	state = StateRefining
	logger.Debug("pipeline state", "state", state)
	refinement := uc.learner.Refine(input.Query, neighbors)

	state = StateGatheringSources
	logger.Debug("pipeline state", "state", state)
	maxSources := input.MaxSources
	if maxSources <= 0 {
		maxSources = uc.maxSources
	}
	selected := uc.selectSources(refinement, maxSources)
	params := &source.Params{Query: input.Query, Intent: intent}
	if intent != nil {
		params.Keywords = intent.Keywords
	}
	sourceResults := uc.gather(ctx, selected, params)
	result.SourceResults = sourceResults
	for _, sr := range sourceResults {
		if !sr.Succeeded() {
			result.Degraded = append(result.Degraded, "source:"+sr.Source)
		}
	}

	if ctx.Err() != nil {
		return nil, goerr.Wrap(ctx.Err(), "pipeline cancelled", goerr.V("state", StateFailed))
	}

	state = StateSynthesizing
	logger.Debug("pipeline state", "state", state)
	synthesis, err := uc.synthesize(ctx, input.Query, refinement, neighbors, sourceResults)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "pipeline cancelled", goerr.V("state", StateFailed))
		}
		logger.Warn("synthesis degraded", "error", err)
		result.Degraded = append(result.Degraded, "synthesis")
		synthesis = fallbackSynthesis(sourceResults)
	}
	result.Synthesis = synthesis

	// A cancelled run must not persist or alert.
	if ctx.Err() != nil {
		return nil, goerr.Wrap(ctx.Err(), "pipeline cancelled", goerr.V("state", StateFailed))
	}

	state = StateEvaluatingAlert
	logger.Debug("pipeline state", "state", state)
	if synthesis.Confidence >= uc.learner.Threshold() {
		emitted, err := uc.alerts.Evaluate(ctx, input.Query, synthesis)
		if err != nil {
			// The answer is already computed; alerting failure is not
			// allowed to invalidate it.
			logger.Warn("alert evaluation failed", "error", err)
		}
		result.AlertTriggered = emitted != nil
	}

	state = StatePersisting
	logger.Debug("pipeline state", "state", state)
	if len(embedding) > 0 {
		record := &model.Memory{
			QueryText:            input.Query,
			Embedding:            embedding,
			Summary:              synthesis,
			SourcesUsed:          succeededNames(sourceResults),
			RefinementApplied:    !refinement.Advisory(),
			RefinementConfidence: refinement.Confidence,
			PrioritizedSources:   refinement.PrioritizedSources,
		}
		id, err := uc.memories.Store(ctx, record)
		if err != nil {
			logger.Warn("failed to persist memory", "error", err)
			result.Degraded = append(result.Degraded, "persistence")
		} else {
			result.MemoryID = id
		}
	} else {
		result.Degraded = append(result.Degraded, "persistence")
	}

	state = StateDone
	logger.Debug("pipeline state", "state", state)
	result.FinishedAt = time.Now()
	return result, nil
}

// selectSources orders candidates by adjusted priority and caps the
// fan-out. Advisory refinements leave the ranking untouched.
func (uc *UseCase) selectSources(refinement *model.Refinement, maxSources int) []string {
	ranked := uc.registry.Ranked()
	if !refinement.Advisory() {
		ranked = uc.learner.PrioritizeSources(ranked, refinement)
	}

	if len(ranked) > maxSources {
		ranked = ranked[:maxSources]
	}

	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.Name
	}
	return names
}
