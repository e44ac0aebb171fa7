package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/repository"
)

func TestMemStoreMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemStore()

	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		QueryText: "latest ransomware campaigns",
		Embedding: firestore.Vector32{0.1, 0.2, 0.3},
		Relevance: 0.5,
		CreatedAt: time.Now(),
	}

	gt.NoError(t, repo.PutMemory(ctx, memory))

	t.Run("get returns stored record", func(t *testing.T) {
		got, err := repo.GetMemory(ctx, memory.ID)
		gt.NoError(t, err)
		gt.V(t, got.QueryText).Equal("latest ransomware campaigns")
		gt.V(t, got.Relevance).Equal(0.5)
	})

	t.Run("get is a copy", func(t *testing.T) {
		got, err := repo.GetMemory(ctx, memory.ID)
		gt.NoError(t, err)
		got.QueryText = "mutated"

		again, err := repo.GetMemory(ctx, memory.ID)
		gt.NoError(t, err)
		gt.V(t, again.QueryText).Equal("latest ransomware campaigns")
	})

	t.Run("update relevance", func(t *testing.T) {
		gt.NoError(t, repo.UpdateMemoryRelevance(ctx, memory.ID, 0.9))
		got, err := repo.GetMemory(ctx, memory.ID)
		gt.NoError(t, err)
		gt.V(t, got.Relevance).Equal(0.9)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := repo.GetMemory(ctx, model.NewMemoryID())
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("delete removes records", func(t *testing.T) {
		gt.NoError(t, repo.DeleteMemories(ctx, []model.MemoryID{memory.ID}))
		_, err := repo.GetMemory(ctx, memory.ID)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})
}

func TestMemStoreSearchSimilar(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemStore()

	put := func(query string, embedding firestore.Vector32, createdAt time.Time) model.MemoryID {
		id := model.NewMemoryID()
		gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
			ID:        id,
			QueryText: query,
			Embedding: embedding,
			Relevance: 0.5,
			CreatedAt: createdAt,
		}))
		return id
	}

	now := time.Now()
	exact := put("exact", firestore.Vector32{1, 0, 0}, now.Add(-time.Hour))
	near := put("near", firestore.Vector32{0.9, 0.1, 0}, now.Add(-2*time.Hour))
	far := put("far", firestore.Vector32{0, 0, 1}, now.Add(-3*time.Hour))

	t.Run("ordered by similarity", func(t *testing.T) {
		neighbors, err := repo.SearchSimilarMemories(ctx, firestore.Vector32{1, 0, 0}, 3)
		gt.NoError(t, err)
		gt.A(t, neighbors).Length(3)
		gt.V(t, neighbors[0].Memory.ID).Equal(exact)
		gt.V(t, neighbors[1].Memory.ID).Equal(near)
		gt.V(t, neighbors[2].Memory.ID).Equal(far)
		gt.True(t, neighbors[0].Similarity > 0.999)
	})

	t.Run("limit caps results", func(t *testing.T) {
		neighbors, err := repo.SearchSimilarMemories(ctx, firestore.Vector32{1, 0, 0}, 1)
		gt.NoError(t, err)
		gt.A(t, neighbors).Length(1)
		gt.V(t, neighbors[0].Memory.ID).Equal(exact)
	})

	t.Run("equal similarity prefers newer", func(t *testing.T) {
		older := put("dup-old", firestore.Vector32{0, 1, 0}, now.Add(-time.Hour))
		newer := put("dup-new", firestore.Vector32{0, 1, 0}, now)

		neighbors, err := repo.SearchSimilarMemories(ctx, firestore.Vector32{0, 1, 0}, 2)
		gt.NoError(t, err)
		gt.A(t, neighbors).Length(2)
		gt.V(t, neighbors[0].Memory.ID).Equal(newer)
		gt.V(t, neighbors[1].Memory.ID).Equal(older)
	})

	t.Run("full tie breaks on id", func(t *testing.T) {
		ts := now.Add(-30 * time.Minute)
		for _, id := range []model.MemoryID{"tie-b", "tie-a"} {
			gt.NoError(t, repo.PutMemory(ctx, &model.Memory{
				ID:        id,
				QueryText: "tie",
				Embedding: firestore.Vector32{0, 0, 1},
				Relevance: 0.5,
				CreatedAt: ts,
			}))
		}

		neighbors, err := repo.SearchSimilarMemories(ctx, firestore.Vector32{0, 0, 1}, 2)
		gt.NoError(t, err)
		gt.A(t, neighbors).Length(2)
		gt.V(t, neighbors[0].Memory.ID).Equal(model.MemoryID("tie-a"))
		gt.V(t, neighbors[1].Memory.ID).Equal(model.MemoryID("tie-b"))
	})

	t.Run("zero vector yields no similarity", func(t *testing.T) {
		neighbors, err := repo.SearchSimilarMemories(ctx, firestore.Vector32{0, 0, 0}, 3)
		gt.NoError(t, err)
		for _, n := range neighbors {
			gt.V(t, n.Similarity).Equal(0.0)
		}
	})
}

func TestMemStoreScheduleCRUD(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemStore()

	sched := &model.Schedule{
		ID:             model.NewScheduleID(),
		QueryText:      "weekly CVE digest",
		CronExpression: "0 9 * * 1",
		Enabled:        true,
		CreatedAt:      time.Now(),
	}

	gt.NoError(t, repo.PutSchedule(ctx, sched))

	got, err := repo.GetSchedule(ctx, sched.ID)
	gt.NoError(t, err)
	gt.V(t, got.QueryText).Equal("weekly CVE digest")

	list, err := repo.ListSchedules(ctx)
	gt.NoError(t, err)
	gt.A(t, list).Length(1)

	gt.NoError(t, repo.DeleteSchedule(ctx, sched.ID))
	_, err = repo.GetSchedule(ctx, sched.ID)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}
