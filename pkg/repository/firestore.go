package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	memoryCollection   = "memories"
	scheduleCollection = "schedules"
)

// Firestore implements Repository using Cloud Firestore with vector
// search over the memory embedding field.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	return &Firestore{client: client}, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

func (r *Firestore) PutMemory(ctx context.Context, memory *model.Memory) error {
	doc := r.client.Collection(memoryCollection).Doc(string(memory.ID))
	if _, err := doc.Set(ctx, memory); err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.V("memory_id", memory.ID))
	}
	return nil
}

func (r *Firestore) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	snap, err := r.client.Collection(memoryCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memory_id", id))
	}

	var memory model.Memory
	if err := snap.DataTo(&memory); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("memory_id", id))
	}
	return &memory, nil
}

func (r *Firestore) UpdateMemoryRelevance(ctx context.Context, id model.MemoryID, score float64) error {
	doc := r.client.Collection(memoryCollection).Doc(string(id))
	_, err := doc.Update(ctx, []firestore.Update{
		{Path: "Relevance", Value: score},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return goerr.Wrap(err, "failed to update relevance", goerr.V("memory_id", id))
	}
	return nil
}

func (r *Firestore) DeleteMemories(ctx context.Context, ids []model.MemoryID) error {
	for _, id := range ids {
		if _, err := r.client.Collection(memoryCollection).Doc(string(id)).Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete memory", goerr.V("memory_id", id))
		}
	}
	return nil
}

func (r *Firestore) ListMemories(ctx context.Context) ([]*model.Memory, error) {
	iter := r.client.Collection(memoryCollection).Documents(ctx)
	defer iter.Stop()

	var memories []*model.Memory
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories")
		}

		var memory model.Memory
		if err := snap.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc", snap.Ref.ID))
		}
		memories = append(memories, &memory)
	}

	return memories, nil
}

func (r *Firestore) SearchSimilarMemories(ctx context.Context, embedding firestore.Vector32, limit int) ([]*model.Neighbor, error) {
	query := r.client.Collection(memoryCollection).FindNearest(
		"Embedding",
		embedding,
		limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceResultField: "vector_distance",
		},
	)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var neighbors []*model.Neighbor
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to run vector search")
		}

		var memory model.Memory
		if err := snap.DataTo(&memory); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc", snap.Ref.ID))
		}

		similarity := 1.0
		if raw, err := snap.DataAt("vector_distance"); err == nil {
			if distance, ok := raw.(float64); ok {
				similarity = 1.0 - distance
			}
		}

		neighbors = append(neighbors, &model.Neighbor{
			Memory:     &memory,
			Similarity: similarity,
		})
	}

	return neighbors, nil
}

func (r *Firestore) PutSchedule(ctx context.Context, schedule *model.Schedule) error {
	doc := r.client.Collection(scheduleCollection).Doc(string(schedule.ID))
	if _, err := doc.Set(ctx, schedule); err != nil {
		return goerr.Wrap(err, "failed to put schedule", goerr.V("schedule_id", schedule.ID))
	}
	return nil
}

func (r *Firestore) GetSchedule(ctx context.Context, id model.ScheduleID) (*model.Schedule, error) {
	snap, err := r.client.Collection(scheduleCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "schedule not found", goerr.V("schedule_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get schedule", goerr.V("schedule_id", id))
	}

	var schedule model.Schedule
	if err := snap.DataTo(&schedule); err != nil {
		return nil, goerr.Wrap(err, "failed to decode schedule", goerr.V("schedule_id", id))
	}
	return &schedule, nil
}

func (r *Firestore) ListSchedules(ctx context.Context) ([]*model.Schedule, error) {
	iter := r.client.Collection(scheduleCollection).Documents(ctx)
	defer iter.Stop()

	var schedules []*model.Schedule
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate schedules")
		}

		var schedule model.Schedule
		if err := snap.DataTo(&schedule); err != nil {
			return nil, goerr.Wrap(err, "failed to decode schedule", goerr.V("doc", snap.Ref.ID))
		}
		schedules = append(schedules, &schedule)
	}

	return schedules, nil
}

func (r *Firestore) DeleteSchedule(ctx context.Context, id model.ScheduleID) error {
	if _, err := r.client.Collection(scheduleCollection).Doc(string(id)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete schedule", goerr.V("schedule_id", id))
	}
	return nil
}
