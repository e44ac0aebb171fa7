package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/usecase/query"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
)

// fire runs one schedule: execute the query, detect drift against the
// previous result hash, alert on change when configured, archive a
// report and update the execution bookkeeping.
func (s *Scheduler) fire(ctx context.Context, id model.ScheduleID) {
	logger := logging.From(ctx).With("schedule_id", id)

	runCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	if err := s.runOnce(runCtx, id); err != nil {
		logger.Error("scheduled execution failed", "error", err)
	}
}

// runOnce is the testable body of one background execution.
func (s *Scheduler) runOnce(ctx context.Context, id model.ScheduleID) error {
	sched, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if !sched.Enabled {
		return nil
	}

	logger := logging.From(ctx)
	result, err := s.runner.Execute(ctx, query.Input{
		Query:      sched.QueryText,
		MaxSources: sched.MaxSources,
	})
	if err != nil {
		return goerr.Wrap(err, "scheduled query failed", goerr.V("schedule_id", id))
	}

	hash := resultHash(result.Synthesis)
	changed := hash != sched.LastResultHash

	if changed && sched.AlertOnChange && !result.AlertTriggered {
		if _, err := s.alerts.Evaluate(ctx, sched.QueryText, result.Synthesis); err != nil {
			logger.Warn("drift alert evaluation failed",
				"schedule_id", id, "error", err)
		}
	}

	if err := s.archiveReport(ctx, sched, result); err != nil {
		logger.Warn("report archiving failed", "schedule_id", id, "error", err)
	}

	// Bookkeeping is written in a single Put so readers never see a
	// half-updated record.
	now := s.now()
	sched.LastResultHash = hash
	sched.LastRunAt = &now
	sched.ExecutionCount++
	sched.UpdatedAt = now
	if err := s.repo.PutSchedule(ctx, sched); err != nil {
		return goerr.Wrap(err, "failed to update schedule bookkeeping", goerr.V("schedule_id", id))
	}

	logger.Info("scheduled query completed",
		"schedule_id", id, "changed", changed, "executions", sched.ExecutionCount)
	return nil
}

// resultHash digests the stable fields of a synthesis. Source order
// must not affect the hash, so names are sorted first.
func resultHash(synthesis *model.Synthesis) string {
	if synthesis == nil {
		return ""
	}

	sources := append([]string(nil), synthesis.Sources...)
	sort.Strings(sources)

	stable := struct {
		Summary    string   `json:"summary"`
		Findings   []string `json:"findings"`
		Confidence float64  `json:"confidence"`
		Sources    []string `json:"sources"`
	}{
		Summary:    synthesis.Summary,
		Findings:   synthesis.Findings,
		Confidence: synthesis.Confidence,
		Sources:    sources,
	}

	encoded, err := json.Marshal(stable)
	if err != nil {
		return ""
	}

	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:])
}

func (s *Scheduler) archiveReport(ctx context.Context, sched *model.Schedule, result *model.QueryResult) error {
	if s.reports == nil {
		return nil
	}

	key := fmt.Sprintf("reports/%s/%s.md", sched.ID, s.now().UTC().Format("20060102-150405"))
	w, err := s.reports.Put(ctx, key)
	if err != nil {
		return err
	}

	if _, err := w.Write([]byte(renderReport(sched, result))); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write report", goerr.V("key", key))
	}
	return w.Close()
}

// RunOnceForTest is a test helper that exposes runOnce
func (s *Scheduler) RunOnceForTest(ctx context.Context, id model.ScheduleID) error {
	return s.runOnce(ctx, id)
}

// ResultHashForTest is a test helper that exposes resultHash
func ResultHashForTest(synthesis *model.Synthesis) string {
	return resultHash(synthesis)
}

func renderReport(sched *model.Schedule, result *model.QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", sched.QueryText)

	if result.Synthesis != nil {
		fmt.Fprintf(&b, "%s\n\n", result.Synthesis.Summary)
		if len(result.Synthesis.Findings) > 0 {
			b.WriteString("## Findings\n\n")
			for _, f := range result.Synthesis.Findings {
				fmt.Fprintf(&b, "- %s\n", f)
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Confidence: %.2f\n", result.Synthesis.Confidence)
		if len(result.Synthesis.Sources) > 0 {
			fmt.Fprintf(&b, "Sources: %s\n", strings.Join(result.Synthesis.Sources, ", "))
		}
		if result.Synthesis.Note != "" {
			fmt.Fprintf(&b, "Note: %s\n", result.Synthesis.Note)
		}
	}

	if len(result.Degraded) > 0 {
		fmt.Fprintf(&b, "\nDegraded capabilities: %s\n", strings.Join(result.Degraded, ", "))
	}
	return b.String()
}
