package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/osprey/pkg/adapter"
	"github.com/m-mizutani/osprey/pkg/alert"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/notify"
	"github.com/m-mizutani/osprey/pkg/repository"
	"github.com/m-mizutani/osprey/pkg/scheduler"
	"github.com/m-mizutani/osprey/pkg/usecase/query"
	"google.golang.org/genai"
)

// mockRunner returns a scripted result for every execution
type mockRunner struct {
	mu        sync.Mutex
	calls     int
	synthesis *model.Synthesis
	err       error
}

func (m *mockRunner) Execute(ctx context.Context, input query.Input) (*model.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &model.QueryResult{
		Query:     input.Query,
		Synthesis: m.synthesis,
	}, nil
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// urgencyGemini always reports an alert-worthy assessment
type urgencyGemini struct{}

func (urgencyGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	data, _ := json.Marshal(model.Urgency{
		ShouldAlert: true,
		Severity:    model.SeverityMedium,
		Title:       "Monitored result changed",
		Reason:      "drift detected",
		KeyPoints:   []string{"result drifted"},
	})
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{{Text: string(data)}},
				},
			},
		},
	}, nil
}

func (urgencyGemini) Embedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

// countingChannel counts dispatched alerts
type countingChannel struct {
	mu   sync.Mutex
	sent int
}

func (c *countingChannel) Name() string { return "counting" }

func (c *countingChannel) Send(ctx context.Context, a *model.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

func (c *countingChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func TestScheduleCRUD(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemStore()
	runner := &mockRunner{synthesis: &model.Synthesis{Summary: "ok"}}
	sched := scheduler.New(repo, runner, alert.New(urgencyGemini{}, nil), nil)

	t.Run("create validates cron expression", func(t *testing.T) {
		_, err := sched.Create(ctx, scheduler.CreateInput{
			QueryText:      "daily digest",
			CronExpression: "not a cron",
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("create requires query text", func(t *testing.T) {
		_, err := sched.Create(ctx, scheduler.CreateInput{
			CronExpression: "0 9 * * *",
		})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("create and get", func(t *testing.T) {
		created, err := sched.Create(ctx, scheduler.CreateInput{
			QueryText:      "daily digest",
			CronExpression: "0 9 * * *",
			Enabled:        true,
			AlertOnChange:  true,
		})
		gt.NoError(t, err)

		got, err := sched.Get(ctx, created.ID)
		gt.NoError(t, err)
		gt.V(t, got.QueryText).Equal("daily digest")
		gt.V(t, got.Enabled).Equal(true)
		gt.V(t, got.ExecutionCount).Equal(0)
	})

	t.Run("update rejects bad cron", func(t *testing.T) {
		created, err := sched.Create(ctx, scheduler.CreateInput{
			QueryText:      "hourly check",
			CronExpression: "0 * * * *",
		})
		gt.NoError(t, err)

		bad := "definitely wrong"
		_, err = sched.Update(ctx, created.ID, scheduler.UpdateInput{CronExpression: &bad})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrValidation))
	})

	t.Run("disable keeps the record", func(t *testing.T) {
		created, err := sched.Create(ctx, scheduler.CreateInput{
			QueryText:      "to disable",
			CronExpression: "0 * * * *",
			Enabled:        true,
		})
		gt.NoError(t, err)

		disabled := false
		updated, err := sched.Update(ctx, created.ID, scheduler.UpdateInput{Enabled: &disabled})
		gt.NoError(t, err)
		gt.V(t, updated.Enabled).Equal(false)

		got, err := sched.Get(ctx, created.ID)
		gt.NoError(t, err)
		gt.V(t, got.Enabled).Equal(false)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		created, err := sched.Create(ctx, scheduler.CreateInput{
			QueryText:      "to delete",
			CronExpression: "0 * * * *",
		})
		gt.NoError(t, err)
		gt.NoError(t, sched.Delete(ctx, created.ID))

		_, err = sched.Get(ctx, created.ID)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, runner *mockRunner, alertOnChange bool) (*scheduler.Scheduler, *countingChannel, model.ScheduleID) {
		t.Helper()
		repo := repository.NewMemStore()
		ch := &countingChannel{}
		// Dedup is exercised in the alert package tests; a zero window
		// keeps repeated drift alerts observable here.
		alerts := alert.New(urgencyGemini{}, []notify.Channel{ch}, alert.WithDedupWindow(0))
		sched := scheduler.New(repo, runner, alerts, nil)

		created, err := sched.Create(ctx, scheduler.CreateInput{
			QueryText:      "watched topic",
			CronExpression: "0 * * * *",
			Enabled:        true,
			AlertOnChange:  alertOnChange,
		})
		gt.NoError(t, err)
		return sched, ch, created.ID
	}

	t.Run("first run records hash and bookkeeping", func(t *testing.T) {
		runner := &mockRunner{synthesis: &model.Synthesis{Summary: "state A", Confidence: 0.8}}
		sched, _, id := setup(t, runner, false)

		gt.NoError(t, sched.RunOnceForTest(ctx, id))

		got, err := sched.Get(ctx, id)
		gt.NoError(t, err)
		gt.V(t, got.ExecutionCount).Equal(1)
		gt.NotNil(t, got.LastRunAt)
		gt.V(t, got.LastResultHash).NotEqual("")
	})

	t.Run("identical result does not alert", func(t *testing.T) {
		runner := &mockRunner{synthesis: &model.Synthesis{Summary: "state A", Confidence: 0.8}}
		sched, ch, id := setup(t, runner, true)

		gt.NoError(t, sched.RunOnceForTest(ctx, id))
		first := ch.count()
		gt.V(t, first).Equal(1) // initial run counts as a change from empty

		gt.NoError(t, sched.RunOnceForTest(ctx, id))
		gt.V(t, ch.count()).Equal(first)

		got, err := sched.Get(ctx, id)
		gt.NoError(t, err)
		gt.V(t, got.ExecutionCount).Equal(2)
	})

	t.Run("changed result alerts when configured", func(t *testing.T) {
		runner := &mockRunner{synthesis: &model.Synthesis{Summary: "state A", Confidence: 0.8}}
		sched, ch, id := setup(t, runner, true)

		gt.NoError(t, sched.RunOnceForTest(ctx, id))
		before := ch.count()

		runner.mu.Lock()
		runner.synthesis = &model.Synthesis{Summary: "state B", Confidence: 0.8}
		runner.mu.Unlock()

		gt.NoError(t, sched.RunOnceForTest(ctx, id))
		gt.V(t, ch.count()).Equal(before + 1)
	})

	t.Run("changed result is silent without alert on change", func(t *testing.T) {
		runner := &mockRunner{synthesis: &model.Synthesis{Summary: "state A", Confidence: 0.8}}
		sched, ch, id := setup(t, runner, false)

		gt.NoError(t, sched.RunOnceForTest(ctx, id))

		runner.mu.Lock()
		runner.synthesis = &model.Synthesis{Summary: "state B", Confidence: 0.8}
		runner.mu.Unlock()

		gt.NoError(t, sched.RunOnceForTest(ctx, id))
		gt.V(t, ch.count()).Equal(0)
	})

	t.Run("disabled schedule does not run", func(t *testing.T) {
		runner := &mockRunner{synthesis: &model.Synthesis{Summary: "state A"}}
		sched, _, id := setup(t, runner, false)

		disabled := false
		_, err := sched.Update(ctx, id, scheduler.UpdateInput{Enabled: &disabled})
		gt.NoError(t, err)

		gt.NoError(t, sched.RunOnceForTest(ctx, id))
		gt.V(t, runner.callCount()).Equal(0)
	})

	t.Run("runner failure leaves bookkeeping untouched", func(t *testing.T) {
		runner := &mockRunner{err: errors.New("pipeline down")}
		sched, _, id := setup(t, runner, false)

		gt.Error(t, sched.RunOnceForTest(ctx, id))

		got, err := sched.Get(ctx, id)
		gt.NoError(t, err)
		gt.V(t, got.ExecutionCount).Equal(0)
		gt.Nil(t, got.LastRunAt)
	})
}

func TestRunOnceArchivesReport(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemStore()
	reports, err := adapter.NewLocalStorage(t.TempDir())
	gt.NoError(t, err)

	runner := &mockRunner{synthesis: &model.Synthesis{
		Summary:  "archived state",
		Findings: []string{"one finding"},
		Sources:  []string{"nvd"},
	}}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sched := scheduler.New(repo, runner, alert.New(urgencyGemini{}, nil), reports,
		scheduler.WithClock(func() time.Time { return now }))

	created, err := sched.Create(ctx, scheduler.CreateInput{
		QueryText:      "archive me",
		CronExpression: "0 * * * *",
		Enabled:        true,
	})
	gt.NoError(t, err)

	gt.NoError(t, sched.RunOnceForTest(ctx, created.ID))

	key := "reports/" + string(created.ID) + "/20260301-090000.md"
	r, err := reports.Get(ctx, key)
	gt.NoError(t, err)
	defer r.Close()

	content, err := io.ReadAll(r)
	gt.NoError(t, err)
	gt.S(t, string(content)).Contains("# archive me")
	gt.S(t, string(content)).Contains("archived state")
	gt.S(t, string(content)).Contains("one finding")
}

func TestResultHash(t *testing.T) {
	base := &model.Synthesis{
		Summary:    "stable",
		Findings:   []string{"a", "b"},
		Confidence: 0.7,
		Sources:    []string{"nvd", "otx"},
	}

	t.Run("deterministic", func(t *testing.T) {
		gt.V(t, scheduler.ResultHashForTest(base)).Equal(scheduler.ResultHashForTest(base))
	})

	t.Run("source order does not matter", func(t *testing.T) {
		reordered := *base
		reordered.Sources = []string{"otx", "nvd"}
		gt.V(t, scheduler.ResultHashForTest(&reordered)).Equal(scheduler.ResultHashForTest(base))
	})

	t.Run("summary change changes hash", func(t *testing.T) {
		changed := *base
		changed.Summary = "different"
		gt.V(t, scheduler.ResultHashForTest(&changed)).NotEqual(scheduler.ResultHashForTest(base))
	})

	t.Run("nil synthesis hashes empty", func(t *testing.T) {
		gt.V(t, scheduler.ResultHashForTest(nil)).Equal("")
	})
}
