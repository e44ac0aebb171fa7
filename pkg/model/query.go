package model

import "time"

// Intent is the structured interpretation of a natural-language query,
// produced by the reasoning capability before source selection.
type Intent struct {
	Topic      string   `json:"topic"`
	Keywords   []string `json:"keywords"`
	TimeRange  string   `json:"time_range,omitempty"`
	MaxSources int      `json:"max_sources,omitempty"`
}

// SourceResult is the outcome of invoking one external source during
// the fan-out stage. A failed source carries Err and is excluded from
// synthesis but still recorded in the run result.
type SourceResult struct {
	Source    string
	Data      any
	Elapsed   time.Duration
	Err       error
	Truncated bool
}

// Succeeded reports whether the source produced usable data.
func (r *SourceResult) Succeeded() bool {
	return r.Err == nil
}

// Synthesis is the combined answer produced from the successful source
// results plus retrieved neighbor context.
type Synthesis struct {
	Summary    string   `json:"summary"`
	Findings   []string `json:"findings"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`

	// Note explains reduced confidence when synthesis degraded, for
	// example when some sources failed or the reasoning call fell back.
	Note string `json:"note,omitempty"`
}

// QueryResult is what the orchestrator returns to its caller.
type QueryResult struct {
	MemoryID       MemoryID
	Query          string
	Intent         *Intent
	Synthesis      *Synthesis
	SourceResults  []*SourceResult
	Neighbors      []*Neighbor
	AlertTriggered bool

	// Degraded lists capabilities that were unavailable during the run
	// (e.g. "memory", "refinement", "source:web"). Empty for a clean run.
	Degraded []string

	StartedAt  time.Time
	FinishedAt time.Time
}
