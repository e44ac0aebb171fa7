package memory

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/repository"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
)

const (
	// DefaultHorizon is how long a memory stays eligible for recall.
	DefaultHorizon = 30 * 24 * time.Hour

	// DefaultSweepInterval is the cadence of the eviction sweep.
	DefaultSweepInterval = time.Hour

	highQualityRelevance = 0.7

	// maxSearchWindow bounds how far FindSimilar widens its candidate
	// fetch; Firestore FindNearest rejects larger limits.
	maxSearchWindow = 1000
)

// Store is the similarity-searchable memory of past pipeline runs. It
// layers eviction, relevance filtering and metrics over a Repository.
type Store struct {
	repo          repository.Repository
	horizon       time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

// Option is a functional option for Store
type Option func(*Store)

// WithHorizon overrides the retention horizon
func WithHorizon(d time.Duration) Option {
	return func(s *Store) {
		s.horizon = d
	}
}

// WithSweepInterval overrides the eviction sweep cadence
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		s.sweepInterval = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a similarity store over the given repository
func New(repo repository.Repository, opts ...Option) *Store {
	s := &Store{
		repo:          repo,
		horizon:       DefaultHorizon,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Store persists a memory record, assigning an ID and creation time if
// absent. Duplicate content is the caller's concern.
func (s *Store) Store(ctx context.Context, memory *model.Memory) (model.MemoryID, error) {
	if memory.ID == "" {
		memory.ID = model.NewMemoryID()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = s.now()
	}
	if memory.Relevance == 0 {
		memory.Relevance = model.DefaultRelevance
	}

	if err := s.repo.PutMemory(ctx, memory); err != nil {
		return "", goerr.Wrap(err, "failed to store memory")
	}

	return memory.ID, nil
}

// FindSimilar returns the top-k non-evicted memories by descending
// cosine similarity, filtered to relevance >= minRelevance. Ties are
// broken by more recent creation, then by ID. An empty store yields an
// empty list.
func (s *Store) FindSimilar(ctx context.Context, embedding firestore.Vector32, k int, minRelevance float64) ([]*model.Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	// Over-fetch so post-filtering still fills k slots. When the window
	// is exhausted by filtered-out records, widen it until the backend
	// returns fewer candidates than asked for.
	cutoff := s.now().Add(-s.horizon)
	neighbors := make([]*model.Neighbor, 0, k)
	for limit := k * 4; ; limit *= 2 {
		candidates, err := s.repo.SearchSimilarMemories(ctx, embedding, limit)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search similar memories")
		}

		neighbors = neighbors[:0]
		for _, n := range candidates {
			if n.Memory.CreatedAt.Before(cutoff) {
				continue
			}
			if n.Memory.Relevance < minRelevance {
				continue
			}
			neighbors = append(neighbors, n)
		}

		if len(neighbors) >= k || len(candidates) < limit || limit >= maxSearchWindow {
			break
		}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		if !neighbors[i].Memory.CreatedAt.Equal(neighbors[j].Memory.CreatedAt) {
			return neighbors[i].Memory.CreatedAt.After(neighbors[j].Memory.CreatedAt)
		}
		return neighbors[i].Memory.ID < neighbors[j].Memory.ID
	})

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// UpdateRelevance overwrites the relevance score of an existing memory.
func (s *Store) UpdateRelevance(ctx context.Context, id model.MemoryID, score float64) error {
	if err := model.ValidateRelevance(score); err != nil {
		return err
	}

	if err := s.repo.UpdateMemoryRelevance(ctx, id, score); err != nil {
		return err
	}
	return nil
}

// Get retrieves a single memory by ID.
func (s *Store) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	return s.repo.GetMemory(ctx, id)
}

// Metrics returns an aggregate snapshot of the store. Evicted records
// are excluded even if the sweep has not yet removed them.
func (s *Store) Metrics(ctx context.Context) (*model.MemoryMetrics, error) {
	memories, err := s.repo.ListMemories(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories")
	}

	cutoff := s.now().Add(-s.horizon)
	metrics := &model.MemoryMetrics{}
	var total float64
	for _, m := range memories {
		if m.CreatedAt.Before(cutoff) {
			continue
		}
		metrics.Count++
		total += m.Relevance
		if m.Relevance >= highQualityRelevance {
			metrics.HighQualityCount++
		}
	}

	if metrics.Count > 0 {
		metrics.AverageRelevance = total / float64(metrics.Count)
	}
	return metrics, nil
}

// Sweep deletes all memories past the retention horizon and returns
// how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	memories, err := s.repo.ListMemories(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list memories for eviction")
	}

	cutoff := s.now().Add(-s.horizon)
	var expired []model.MemoryID
	for _, m := range memories {
		if m.CreatedAt.Before(cutoff) {
			expired = append(expired, m.ID)
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}

	if err := s.repo.DeleteMemories(ctx, expired); err != nil {
		return 0, goerr.Wrap(err, "failed to evict memories")
	}
	return len(expired), nil
}

// StartEviction runs the periodic sweep until the context is done.
func (s *Store) StartEviction(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted, err := s.Sweep(ctx)
				if err != nil {
					logging.From(ctx).Warn("eviction sweep failed", "error", err)
					continue
				}
				if evicted > 0 {
					logging.From(ctx).Info("evicted expired memories", "count", evicted)
				}
			}
		}
	}()
}
