package model

import (
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// DefaultRelevance is assigned to a memory at creation, before any
// operator feedback arrives.
const DefaultRelevance = 0.5

// Memory represents one past pipeline run: the query, its embedding,
// what was synthesized and which sources contributed. The summary is
// stored verbatim and never interpreted by the store.
type Memory struct {
	ID          MemoryID
	QueryText   string
	Embedding   firestore.Vector32
	Summary     *Synthesis
	SourcesUsed []string
	Relevance   float64
	CreatedAt   time.Time

	// Refinement metadata captured for effectiveness analysis
	RefinementApplied    bool
	RefinementConfidence float64
	PrioritizedSources   []string
}

// Neighbor is a memory returned from a similarity search together with
// its cosine similarity to the query embedding.
type Neighbor struct {
	Memory     *Memory
	Similarity float64
}

// ValidateRelevance checks a feedback score is within [0, 1].
func ValidateRelevance(score float64) error {
	if score < 0 || score > 1 {
		return goerr.Wrap(ErrValidation, "relevance score out of range", goerr.V("score", score))
	}
	return nil
}

// MemoryMetrics is an aggregate snapshot of the similarity store.
type MemoryMetrics struct {
	Count            int
	AverageRelevance float64
	HighQualityCount int
}
