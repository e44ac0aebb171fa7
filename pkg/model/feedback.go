package model

import "time"

// Feedback is one operator relevance judgement on a past run.
type Feedback struct {
	MemoryID   MemoryID
	Relevance  float64
	Confidence float64
	CreatedAt  time.Time
}

// Refinement is the output of the learning component for one query.
// It is ephemeral: created and consumed within a single pipeline run.
type Refinement struct {
	Suggestions        []string
	Confidence         float64
	PrioritizedSources []string
}

// Advisory reports whether the refinement should not alter source
// selection. Low-confidence refinements are informational only.
func (r *Refinement) Advisory() bool {
	return r.Confidence < 0.3
}
