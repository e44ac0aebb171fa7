package learning

import "sync"

const (
	// ThresholdMin and ThresholdMax bound the adaptive confidence
	// threshold regardless of feedback pressure.
	ThresholdMin = 0.3
	ThresholdMax = 0.9

	// DefaultThreshold is the initial value when none is configured.
	DefaultThreshold = 0.5

	thresholdStep = 0.05
)

// Threshold is the process-wide adaptive confidence threshold. It is
// an explicitly owned value: the learning service is the only writer,
// everything else takes snapshot reads.
type Threshold struct {
	mu    sync.RWMutex
	value float64
}

// NewThreshold creates a threshold clamped to its bounds
func NewThreshold(initial float64) *Threshold {
	return &Threshold{value: clampThreshold(initial)}
}

// Value returns a snapshot of the current threshold
func (t *Threshold) Value() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

func (t *Threshold) step(up bool) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if up {
		t.value = clampThreshold(t.value + thresholdStep)
	} else {
		t.value = clampThreshold(t.value - thresholdStep)
	}
	return t.value
}

func clampThreshold(v float64) float64 {
	if v < ThresholdMin {
		return ThresholdMin
	}
	if v > ThresholdMax {
		return ThresholdMax
	}
	return v
}
