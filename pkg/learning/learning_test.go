package learning_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/osprey/pkg/learning"
	"github.com/m-mizutani/osprey/pkg/model"
)

func neighbor(relevance float64, summary string, sources ...string) *model.Neighbor {
	m := &model.Memory{
		ID:          model.NewMemoryID(),
		Relevance:   relevance,
		SourcesUsed: sources,
		CreatedAt:   time.Now(),
	}
	if summary != "" {
		m.Summary = &model.Synthesis{Summary: summary}
	}
	return &model.Neighbor{Memory: m, Similarity: 0.9}
}

func TestRefine(t *testing.T) {
	svc := learning.New(learning.NewThreshold(learning.DefaultThreshold))

	t.Run("no neighbors yields neutral default", func(t *testing.T) {
		refinement := svc.Refine("any query", nil)
		gt.V(t, refinement.Confidence).Equal(0.5)
		gt.A(t, refinement.Suggestions).Length(0)
		gt.True(t, refinement.Advisory() == false)
	})

	t.Run("low relevance neighbors do not qualify", func(t *testing.T) {
		refinement := svc.Refine("any query", []*model.Neighbor{
			neighbor(0.3, "noise"),
			neighbor(0.5, "more noise"),
		})
		gt.V(t, refinement.Confidence).Equal(0.5)
		gt.A(t, refinement.Suggestions).Length(0)
	})

	t.Run("single qualifying neighbor lands above default", func(t *testing.T) {
		refinement := svc.Refine("any query", []*model.Neighbor{
			neighbor(0.7, "Focus on exploit kits\nsecond line ignored"),
		})

		// 0.7*0.7 + 0.3*(1/5)
		gt.True(t, math.Abs(refinement.Confidence-0.55) < 1e-9)
		gt.A(t, refinement.Suggestions).Length(1)
		gt.V(t, refinement.Suggestions[0]).Equal("Focus on exploit kits")
	})

	t.Run("suggestions capped at three", func(t *testing.T) {
		refinement := svc.Refine("any query", []*model.Neighbor{
			neighbor(0.8, "one"),
			neighbor(0.8, "two"),
			neighbor(0.8, "three"),
			neighbor(0.8, "four"),
		})
		gt.A(t, refinement.Suggestions).Length(3)
	})

	t.Run("confidence is capped at one", func(t *testing.T) {
		var neighbors []*model.Neighbor
		for i := 0; i < 10; i++ {
			neighbors = append(neighbors, neighbor(1.0, ""))
		}
		refinement := svc.Refine("any query", neighbors)
		gt.True(t, refinement.Confidence <= 1.0)
	})

	t.Run("sources ranked across qualifying neighbors", func(t *testing.T) {
		refinement := svc.Refine("any query", []*model.Neighbor{
			neighbor(0.9, "", "nvd", "otx"),
			neighbor(0.8, "", "nvd"),
			neighbor(0.7, "", "shodan"),
		})

		gt.A(t, refinement.PrioritizedSources).Length(3)
		gt.V(t, refinement.PrioritizedSources[0]).Equal("nvd")
	})
}

func TestPrioritizeSources(t *testing.T) {
	svc := learning.New(learning.NewThreshold(learning.DefaultThreshold))

	t.Run("boost follows rank", func(t *testing.T) {
		out := svc.PrioritizeSources(
			[]learning.ScoredSource{
				{Name: "nvd", Priority: 1.0},
				{Name: "otx", Priority: 1.0},
				{Name: "shodan", Priority: 1.0},
			},
			&model.Refinement{PrioritizedSources: []string{"otx", "shodan"}},
		)

		gt.V(t, out[0].Name).Equal("otx")
		gt.True(t, math.Abs(out[0].Priority-1.5) < 1e-9)
		gt.V(t, out[1].Name).Equal("shodan")
		gt.True(t, math.Abs(out[1].Priority-1.25) < 1e-9)
		gt.V(t, out[2].Name).Equal("nvd")
		gt.V(t, out[2].Priority).Equal(1.0)
	})

	t.Run("empty refinement leaves order intact", func(t *testing.T) {
		out := svc.PrioritizeSources(
			[]learning.ScoredSource{
				{Name: "a", Priority: 2.0},
				{Name: "b", Priority: 1.0},
			},
			&model.Refinement{},
		)
		gt.V(t, out[0].Name).Equal("a")
		gt.V(t, out[0].Priority).Equal(2.0)
		gt.V(t, out[1].Name).Equal("b")
	})
}

func TestAdjustThreshold(t *testing.T) {
	ctx := context.Background()

	batch := func(n int, confidence, relevance float64) []*model.Feedback {
		out := make([]*model.Feedback, n)
		for i := range out {
			out[i] = &model.Feedback{
				MemoryID:   model.NewMemoryID(),
				Confidence: confidence,
				Relevance:  relevance,
			}
		}
		return out
	}

	t.Run("small batch is ignored", func(t *testing.T) {
		svc := learning.New(learning.NewThreshold(0.5))
		svc.AdjustThreshold(ctx, batch(9, 0.9, 0.1))
		gt.V(t, svc.Threshold()).Equal(0.5)
	})

	t.Run("high false positive rate raises threshold", func(t *testing.T) {
		svc := learning.New(learning.NewThreshold(0.5))
		fb := append(batch(3, 0.9, 0.1), batch(7, 0.9, 0.9)...)
		svc.AdjustThreshold(ctx, fb)
		gt.V(t, svc.Threshold()).Equal(0.55)
	})

	t.Run("low false positive rate lowers threshold", func(t *testing.T) {
		svc := learning.New(learning.NewThreshold(0.5))
		svc.AdjustThreshold(ctx, batch(10, 0.9, 0.9))
		gt.V(t, svc.Threshold()).Equal(0.45)
	})

	t.Run("moderate rate holds steady", func(t *testing.T) {
		svc := learning.New(learning.NewThreshold(0.5))
		fb := append(batch(1, 0.9, 0.1), batch(9, 0.9, 0.9)...)
		svc.AdjustThreshold(ctx, fb)
		gt.V(t, svc.Threshold()).Equal(0.5)
	})

	t.Run("threshold never exceeds upper bound", func(t *testing.T) {
		svc := learning.New(learning.NewThreshold(learning.ThresholdMax))
		svc.AdjustThreshold(ctx, batch(10, 1.0, 0.0))
		gt.V(t, svc.Threshold()).Equal(learning.ThresholdMax)
	})

	t.Run("threshold never drops below lower bound", func(t *testing.T) {
		svc := learning.New(learning.NewThreshold(learning.ThresholdMin))
		svc.AdjustThreshold(ctx, batch(10, 0.9, 0.9))
		gt.V(t, svc.Threshold()).Equal(learning.ThresholdMin)
	})

	t.Run("initial value is clamped", func(t *testing.T) {
		svc := learning.New(learning.NewThreshold(2.0))
		gt.V(t, svc.Threshold()).Equal(learning.ThresholdMax)
	})
}
