package stats

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/learning"
	"github.com/m-mizutani/osprey/pkg/repository"
	"github.com/m-mizutani/osprey/pkg/source"
)

// Snapshot is the aggregate view of the system's learning state.
type Snapshot struct {
	TotalProcessed    int
	AverageRelevance  float64
	AverageConfidence float64
	HighQualityCount  int

	// ImprovementTrend is the average relevance of the newer half of
	// memories minus the older half; positive means feedback says
	// results are getting better.
	ImprovementTrend float64

	CurrentThreshold float64
	SourcePriorities []learning.ScoredSource
}

// UseCase aggregates metrics across the repository, the threshold and
// the source registry.
type UseCase struct {
	repo     repository.Repository
	learner  *learning.Service
	registry *source.Registry
}

// New creates a stats usecase
func New(repo repository.Repository, learner *learning.Service, registry *source.Registry) *UseCase {
	return &UseCase{
		repo:     repo,
		learner:  learner,
		registry: registry,
	}
}

// Collect computes a snapshot over all stored memories.
func (uc *UseCase) Collect(ctx context.Context) (*Snapshot, error) {
	memories, err := uc.repo.ListMemories(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories for stats")
	}

	snapshot := &Snapshot{
		TotalProcessed:   len(memories),
		CurrentThreshold: uc.learner.Threshold(),
		SourcePriorities: uc.registry.Ranked(),
	}

	if len(memories) == 0 {
		return snapshot, nil
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})

	var relevanceSum, confidenceSum float64
	for _, m := range memories {
		relevanceSum += m.Relevance
		if m.Summary != nil {
			confidenceSum += m.Summary.Confidence
		}
		if m.Relevance >= 0.7 {
			snapshot.HighQualityCount++
		}
	}
	snapshot.AverageRelevance = relevanceSum / float64(len(memories))
	snapshot.AverageConfidence = confidenceSum / float64(len(memories))

	if len(memories) >= 4 {
		mid := len(memories) / 2
		older, newer := memories[:mid], memories[mid:]

		var olderSum, newerSum float64
		for _, m := range older {
			olderSum += m.Relevance
		}
		for _, m := range newer {
			newerSum += m.Relevance
		}
		snapshot.ImprovementTrend = newerSum/float64(len(newer)) - olderSum/float64(len(older))
	}

	return snapshot, nil
}
