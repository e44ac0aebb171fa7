package feedback

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/learning"
	"github.com/m-mizutani/osprey/pkg/memory"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
)

const batchSize = 10

// UseCase applies operator relevance feedback: it updates the stored
// memory and feeds completed batches into threshold learning.
type UseCase struct {
	memories *memory.Store
	learner  *learning.Service

	mu    sync.Mutex
	batch []*model.Feedback
}

// New creates a feedback usecase
func New(memories *memory.Store, learner *learning.Service) *UseCase {
	return &UseCase{
		memories: memories,
		learner:  learner,
	}
}

// Submit records one relevance judgement. Unknown memory IDs are
// rejected without state change; every accepted judgement overwrites
// the memory's relevance (last write wins).
func (uc *UseCase) Submit(ctx context.Context, id model.MemoryID, relevance float64) error {
	if err := model.ValidateRelevance(relevance); err != nil {
		return err
	}

	memory, err := uc.memories.Get(ctx, id)
	if err != nil {
		return goerr.Wrap(err, "failed to look up memory for feedback", goerr.V("memory_id", id))
	}

	if err := uc.memories.UpdateRelevance(ctx, id, relevance); err != nil {
		return err
	}

	confidence := 0.0
	if memory.Summary != nil {
		confidence = memory.Summary.Confidence
	}

	uc.mu.Lock()
	uc.batch = append(uc.batch, &model.Feedback{
		MemoryID:   id,
		Relevance:  relevance,
		Confidence: confidence,
	})
	var full []*model.Feedback
	if len(uc.batch) >= batchSize {
		full = uc.batch
		uc.batch = nil
	}
	uc.mu.Unlock()

	if full != nil {
		uc.learner.AdjustThreshold(ctx, full)
		logging.From(ctx).Debug("processed feedback batch", "size", len(full))
	}

	return nil
}
