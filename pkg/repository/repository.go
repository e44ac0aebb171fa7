package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/osprey/pkg/model"
)

// Repository defines persistence for memories and schedules. Vector
// search is delegated to the backend: Firestore uses FindNearest, the
// in-process backend scans with brute-force cosine.
type Repository interface {
	// PutMemory saves a memory record
	PutMemory(ctx context.Context, memory *model.Memory) error

	// GetMemory retrieves a memory by ID
	GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// UpdateMemoryRelevance overwrites the relevance score of a memory
	UpdateMemoryRelevance(ctx context.Context, id model.MemoryID, score float64) error

	// DeleteMemories removes the given memories atomically per record
	DeleteMemories(ctx context.Context, ids []model.MemoryID) error

	// ListMemories returns all stored memories
	ListMemories(ctx context.Context) ([]*model.Memory, error)

	// SearchSimilarMemories performs k-NN search by cosine similarity
	SearchSimilarMemories(ctx context.Context, embedding firestore.Vector32, limit int) ([]*model.Neighbor, error)

	// PutSchedule creates or overwrites a schedule record
	PutSchedule(ctx context.Context, schedule *model.Schedule) error

	// GetSchedule retrieves a schedule by ID
	GetSchedule(ctx context.Context, id model.ScheduleID) (*model.Schedule, error)

	// ListSchedules returns all schedule records
	ListSchedules(ctx context.Context) ([]*model.Schedule, error)

	// DeleteSchedule removes a schedule record
	DeleteSchedule(ctx context.Context, id model.ScheduleID) error
}
