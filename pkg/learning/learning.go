package learning

import (
	"context"
	"sort"
	"strings"

	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
)

const (
	// qualifyingRelevance is the minimum relevance for a neighbor to
	// contribute to refinement.
	qualifyingRelevance = 0.7

	// minFeedbackBatch gates threshold adjustment: smaller batches are
	// statistically worthless and ignored.
	minFeedbackBatch = 10

	maxSuggestions = 3
)

// Service turns stored feedback and similarity-search results into
// query refinements, source priorities and threshold adjustments.
type Service struct {
	threshold *Threshold
}

// New creates a learning service owning the given threshold
func New(threshold *Threshold) *Service {
	return &Service{threshold: threshold}
}

// Threshold returns a snapshot of the current confidence threshold
func (s *Service) Threshold() float64 {
	return s.threshold.Value()
}

// Refine derives refinement suggestions and source priorities from the
// high-relevance neighbors of a query. With no qualifying neighbor it
// returns the neutral default: no suggestions, confidence 0.5.
func (s *Service) Refine(query string, neighbors []*model.Neighbor) *model.Refinement {
	var qualifying []*model.Neighbor
	for _, n := range neighbors {
		if n.Memory.Relevance >= qualifyingRelevance {
			qualifying = append(qualifying, n)
		}
	}

	if len(qualifying) == 0 {
		return &model.Refinement{Confidence: 0.5}
	}

	var totalRelevance float64
	var suggestions []string
	for _, n := range qualifying {
		totalRelevance += n.Memory.Relevance
		if len(suggestions) < maxSuggestions {
			if hint := summaryHint(n.Memory); hint != "" {
				suggestions = append(suggestions, hint)
			}
		}
	}
	avgRelevance := totalRelevance / float64(len(qualifying))

	// More qualifying neighbors and higher relevance both raise
	// confidence; a single 0.7 neighbor lands just above the default.
	countFactor := float64(len(qualifying)) / 5.0
	if countFactor > 1 {
		countFactor = 1
	}
	confidence := 0.7*avgRelevance + 0.3*countFactor
	if confidence > 1 {
		confidence = 1
	}

	return &model.Refinement{
		Suggestions:        suggestions,
		Confidence:         confidence,
		PrioritizedSources: rankSources(qualifying),
	}
}

// summaryHint extracts a short refinement suggestion from a stored
// summary: the first line of what made that run succeed.
func summaryHint(m *model.Memory) string {
	if m.Summary == nil {
		return ""
	}
	line := m.Summary.Summary
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// rankSources orders sources across qualifying neighbors by a blend
// of how often they appear, the average relevance of the runs that
// used them, and raw usage volume.
func rankSources(qualifying []*model.Neighbor) []string {
	type stat struct {
		usage         int
		relevanceSum  float64
		neighborCount int
	}
	stats := make(map[string]*stat)

	for _, n := range qualifying {
		seen := make(map[string]bool)
		for _, src := range n.Memory.SourcesUsed {
			st, ok := stats[src]
			if !ok {
				st = &stat{}
				stats[src] = st
			}
			st.usage++
			if !seen[src] {
				st.relevanceSum += n.Memory.Relevance
				st.neighborCount++
				seen[src] = true
			}
		}
	}

	names := make([]string, 0, len(stats))
	weights := make(map[string]float64, len(stats))
	for name, st := range stats {
		successRate := float64(st.neighborCount) / float64(len(qualifying))
		avgRelevance := st.relevanceSum / float64(st.neighborCount)
		usageFactor := float64(st.usage) / 10.0
		if usageFactor > 1 {
			usageFactor = 1
		}
		weights[name] = 0.5*successRate + 0.3*avgRelevance + 0.2*usageFactor
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		if weights[names[i]] != weights[names[j]] {
			return weights[names[i]] > weights[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// ScoredSource pairs a source name with its current priority.
type ScoredSource struct {
	Name     string
	Priority float64
}

// PrioritizeSources boosts candidates that appear in the refinement's
// prioritized list, proportionally to their rank. The first-ranked
// source gets the largest boost, capped at 1.5x; absent candidates
// keep their priority. The result is sorted by descending priority.
func (s *Service) PrioritizeSources(candidates []ScoredSource, refinement *model.Refinement) []ScoredSource {
	ranks := make(map[string]int, len(refinement.PrioritizedSources))
	for i, name := range refinement.PrioritizedSources {
		ranks[name] = i
	}

	out := make([]ScoredSource, len(candidates))
	n := len(refinement.PrioritizedSources)
	for i, c := range candidates {
		out[i] = c
		if rank, ok := ranks[c.Name]; ok && n > 0 {
			boost := 1.0 + 0.5*float64(n-rank)/float64(n)
			out[i].Priority = c.Priority * boost
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// AdjustThreshold recomputes the confidence threshold from a feedback
// batch. Batches under 10 entries are ignored. A false positive is a
// run reported above the current threshold that feedback judged
// irrelevant (< 0.5).
func (s *Service) AdjustThreshold(ctx context.Context, batch []*model.Feedback) {
	if len(batch) < minFeedbackBatch {
		return
	}

	current := s.threshold.Value()
	var falsePositives int
	for _, fb := range batch {
		if fb.Confidence > current && fb.Relevance < 0.5 {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(len(batch))
	switch {
	case rate > 0.20:
		updated := s.threshold.step(true)
		logging.From(ctx).Info("raised confidence threshold",
			"false_positive_rate", rate, "threshold", updated)
	case rate < 0.05:
		updated := s.threshold.step(false)
		logging.From(ctx).Info("lowered confidence threshold",
			"false_positive_rate", rate, "threshold", updated)
	}
}
