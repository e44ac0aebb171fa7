package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/osprey/pkg/adapter"
	"github.com/m-mizutani/osprey/pkg/alert"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/repository"
	"github.com/m-mizutani/osprey/pkg/usecase/query"
	"github.com/robfig/cron/v3"
)

// DefaultRunBudget bounds one background execution end to end.
const DefaultRunBudget = 60 * time.Second

// Runner is the orchestrator entry point shared with foreground
// requests.
type Runner interface {
	Execute(ctx context.Context, input query.Input) (*model.QueryResult, error)
}

// Scheduler maintains recurring query definitions and drives the
// orchestrator on their cron triggers, detecting result drift between
// consecutive executions.
type Scheduler struct {
	repo    repository.Repository
	runner  Runner
	alerts  *alert.Service
	reports adapter.Storage

	cron   *cron.Cron
	budget time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[model.ScheduleID]cron.EntryID
}

// Option is a functional option for Scheduler
type Option func(*Scheduler)

// WithRunBudget overrides the per-execution time budget
func WithRunBudget(d time.Duration) Option {
	return func(s *Scheduler) {
		s.budget = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a scheduler. Reports from background runs are archived
// through the given storage.
func New(repo repository.Repository, runner Runner, alerts *alert.Service, reports adapter.Storage, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:    repo,
		runner:  runner,
		alerts:  alerts,
		reports: reports,
		cron:    cron.New(),
		budget:  DefaultRunBudget,
		now:     time.Now,
		entries: make(map[model.ScheduleID]cron.EntryID),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start installs triggers for every enabled schedule and begins
// firing them. It returns immediately; triggers run until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	schedules, err := s.repo.ListSchedules(ctx)
	if err != nil {
		return err
	}

	for _, sched := range schedules {
		if sched.Enabled {
			if err := s.install(ctx, sched); err != nil {
				return err
			}
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts all triggers and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// install registers the cron trigger for a schedule. An existing
// trigger for the same ID is replaced, so re-installing (seed load
// followed by Start) never leaves a stray entry firing.
func (s *Scheduler) install(ctx context.Context, sched *model.Schedule) error {
	id := sched.ID
	entryID, err := s.cron.AddFunc(sched.CronExpression, func() {
		s.fire(ctx, id)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if old, ok := s.entries[id]; ok {
		s.cron.Remove(old)
	}
	s.entries[id] = entryID
	s.mu.Unlock()
	return nil
}

// CronEntryCountForTest is a test helper that exposes the number of
// live cron entries.
func (s *Scheduler) CronEntryCountForTest() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) uninstall(id model.ScheduleID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}
