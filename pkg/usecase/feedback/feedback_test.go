package feedback_test

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/osprey/pkg/learning"
	"github.com/m-mizutani/osprey/pkg/memory"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/repository"
	"github.com/m-mizutani/osprey/pkg/usecase/feedback"
)

type harness struct {
	uc       *feedback.UseCase
	memories *memory.Store
	learner  *learning.Service
}

func newHarness(initialThreshold float64) *harness {
	memories := memory.New(repository.NewMemStore())
	learner := learning.New(learning.NewThreshold(initialThreshold))
	return &harness{
		uc:       feedback.New(memories, learner),
		memories: memories,
		learner:  learner,
	}
}

func (h *harness) storeMemory(ctx context.Context, t *testing.T, confidence float64) model.MemoryID {
	t.Helper()
	id, err := h.memories.Store(ctx, &model.Memory{
		QueryText: "stored run",
		Embedding: firestore.Vector32{1},
		Summary:   &model.Synthesis{Summary: "answer", Confidence: confidence},
	})
	gt.NoError(t, err)
	return id
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("updates memory relevance", func(t *testing.T) {
		h := newHarness(0.5)
		id := h.storeMemory(ctx, t, 0.8)

		gt.NoError(t, h.uc.Submit(ctx, id, 0.9))

		got, err := h.memories.Get(ctx, id)
		gt.NoError(t, err)
		gt.V(t, got.Relevance).Equal(0.9)
	})

	t.Run("last write wins", func(t *testing.T) {
		h := newHarness(0.5)
		id := h.storeMemory(ctx, t, 0.8)

		gt.NoError(t, h.uc.Submit(ctx, id, 0.9))
		gt.NoError(t, h.uc.Submit(ctx, id, 0.25))

		got, err := h.memories.Get(ctx, id)
		gt.NoError(t, err)
		gt.V(t, got.Relevance).Equal(0.25)
	})

	t.Run("out of range score rejected", func(t *testing.T) {
		h := newHarness(0.5)
		id := h.storeMemory(ctx, t, 0.8)

		err := h.uc.Submit(ctx, id, -0.1)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("unknown memory rejected", func(t *testing.T) {
		h := newHarness(0.5)
		err := h.uc.Submit(ctx, model.NewMemoryID(), 0.5)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("full batch adjusts threshold", func(t *testing.T) {
		h := newHarness(0.5)

		// Ten high-confidence runs all judged irrelevant: a full batch
		// of false positives raises the threshold.
		for i := 0; i < 10; i++ {
			id := h.storeMemory(ctx, t, 0.9)
			gt.NoError(t, h.uc.Submit(ctx, id, 0.1))
		}
		gt.V(t, h.learner.Threshold()).Equal(0.55)
	})

	t.Run("partial batch leaves threshold alone", func(t *testing.T) {
		h := newHarness(0.5)

		for i := 0; i < 9; i++ {
			id := h.storeMemory(ctx, t, 0.9)
			gt.NoError(t, h.uc.Submit(ctx, id, 0.1))
		}
		gt.V(t, h.learner.Threshold()).Equal(0.5)
	})
}
