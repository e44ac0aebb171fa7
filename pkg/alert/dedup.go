package alert

import (
	"strings"

	"github.com/m-mizutani/osprey/pkg/model"
)

const (
	// textSimilarityThreshold is the token Jaccard cutoff above which
	// two alerts are considered the same event.
	textSimilarityThreshold = 0.8

	// keyPointOverlapThreshold catches duplicates whose titles differ
	// but whose findings substantially overlap.
	keyPointOverlapThreshold = 0.6
)

// isDuplicate reports whether a comparable alert was already emitted
// within the rolling window. It also prunes expired history entries.
func (s *Service) isDuplicate(query, title string, keyPoints []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.window)
	kept := s.history[:0]
	for _, a := range s.history {
		if a.CreatedAt.After(cutoff) {
			kept = append(kept, a)
		}
	}
	s.history = kept

	for _, a := range s.history {
		if jaccard(tokenize(a.Title), tokenize(title)) >= textSimilarityThreshold {
			return true
		}
		if jaccard(tokenize(a.Query), tokenize(query)) >= textSimilarityThreshold {
			return true
		}
		if keyPointOverlap(a.KeyPoints, keyPoints) >= keyPointOverlapThreshold {
			return true
		}
	}
	return false
}

// remember adds an emitted alert to the dedup history.
func (s *Service) remember(alert *model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, alert)
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,:;!?\"'()[]")
		if tok != "" {
			tokens[tok] = true
		}
	}
	return tokens
}

// jaccard computes |A∩B| / |A∪B| over token sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// keyPointOverlap is the fraction of the smaller key-point set that
// has a near-identical counterpart in the other.
func keyPointOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	matched := 0
	for _, pa := range a {
		ta := tokenize(pa)
		for _, pb := range b {
			if jaccard(ta, tokenize(pb)) >= textSimilarityThreshold {
				matched++
				break
			}
		}
	}

	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(matched) / float64(smaller)
}
