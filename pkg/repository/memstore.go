package repository

import (
	"context"
	"math"
	"sort"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
)

// MemStore is a process-local Repository used for tests and local runs.
// Records are copied on write and on read so concurrent readers never
// observe partial updates.
type MemStore struct {
	mu        sync.RWMutex
	memories  map[model.MemoryID]*model.Memory
	schedules map[model.ScheduleID]*model.Schedule
}

// NewMemStore creates an empty in-process repository
func NewMemStore() *MemStore {
	return &MemStore{
		memories:  make(map[model.MemoryID]*model.Memory),
		schedules: make(map[model.ScheduleID]*model.Schedule),
	}
}

func copyMemory(m *model.Memory) *model.Memory {
	c := *m
	return &c
}

func copySchedule(s *model.Schedule) *model.Schedule {
	c := *s
	return &c
}

func (r *MemStore) PutMemory(ctx context.Context, memory *model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memories[memory.ID] = copyMemory(memory)
	return nil
}

func (r *MemStore) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memory, ok := r.memories[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "memory not found", goerr.V("memory_id", id))
	}
	return copyMemory(memory), nil
}

func (r *MemStore) UpdateMemoryRelevance(ctx context.Context, id model.MemoryID, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	memory, ok := r.memories[id]
	if !ok {
		return goerr.Wrap(model.ErrNotFound, "memory not found", goerr.V("memory_id", id))
	}

	updated := copyMemory(memory)
	updated.Relevance = score
	r.memories[id] = updated
	return nil
}

func (r *MemStore) DeleteMemories(ctx context.Context, ids []model.MemoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.memories, id)
	}
	return nil
}

func (r *MemStore) ListMemories(ctx context.Context) ([]*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memories := make([]*model.Memory, 0, len(r.memories))
	for _, m := range r.memories {
		memories = append(memories, copyMemory(m))
	}
	return memories, nil
}

func (r *MemStore) SearchSimilarMemories(ctx context.Context, embedding firestore.Vector32, limit int) ([]*model.Neighbor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	neighbors := make([]*model.Neighbor, 0, len(r.memories))
	for _, m := range r.memories {
		neighbors = append(neighbors, &model.Neighbor{
			Memory:     copyMemory(m),
			Similarity: cosineSimilarity(embedding, m.Embedding),
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		if !neighbors[i].Memory.CreatedAt.Equal(neighbors[j].Memory.CreatedAt) {
			return neighbors[i].Memory.CreatedAt.After(neighbors[j].Memory.CreatedAt)
		}
		return neighbors[i].Memory.ID < neighbors[j].Memory.ID
	})

	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors, nil
}

// cosineSimilarity calculates cosine similarity between two vectors
func cosineSimilarity(a, b firestore.Vector32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (r *MemStore) PutSchedule(ctx context.Context, schedule *model.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[schedule.ID] = copySchedule(schedule)
	return nil
}

func (r *MemStore) GetSchedule(ctx context.Context, id model.ScheduleID) (*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedule, ok := r.schedules[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "schedule not found", goerr.V("schedule_id", id))
	}
	return copySchedule(schedule), nil
}

func (r *MemStore) ListSchedules(ctx context.Context) ([]*model.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedules := make([]*model.Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		schedules = append(schedules, copySchedule(s))
	}

	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})
	return schedules, nil
}

func (r *MemStore) DeleteSchedule(ctx context.Context, id model.ScheduleID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schedules, id)
	return nil
}
