package scheduler

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/robfig/cron/v3"
)

// CreateInput describes a new recurring query.
type CreateInput struct {
	QueryText      string
	CronExpression string
	Enabled        bool
	AlertOnChange  bool
	MaxSources     int
}

// validateCron rejects malformed expressions before anything is
// persisted.
func validateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return goerr.Wrap(model.ErrValidation, "invalid cron expression",
			goerr.V("expression", expr), goerr.V("cause", err.Error()))
	}
	return nil
}

// Create validates and persists a schedule, installing its trigger
// when enabled.
func (s *Scheduler) Create(ctx context.Context, input CreateInput) (*model.Schedule, error) {
	if input.QueryText == "" {
		return nil, goerr.Wrap(model.ErrValidation, "query text is required")
	}
	if err := validateCron(input.CronExpression); err != nil {
		return nil, err
	}

	now := s.now()
	sched := &model.Schedule{
		ID:             model.NewScheduleID(),
		QueryText:      input.QueryText,
		CronExpression: input.CronExpression,
		Enabled:        input.Enabled,
		AlertOnChange:  input.AlertOnChange,
		MaxSources:     input.MaxSources,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.PutSchedule(ctx, sched); err != nil {
		return nil, goerr.Wrap(err, "failed to persist schedule")
	}

	if sched.Enabled {
		if err := s.install(ctx, sched); err != nil {
			return nil, goerr.Wrap(err, "failed to install trigger")
		}
	}

	return sched, nil
}

// UpdateInput carries mutable schedule fields. Nil means unchanged.
type UpdateInput struct {
	QueryText      *string
	CronExpression *string
	Enabled        *bool
	AlertOnChange  *bool
	MaxSources     *int
}

// Update applies changes to an existing schedule. Disabling removes
// the trigger without deleting the record; re-enabling reinstalls it
// and the next fire time follows from the cron expression.
func (s *Scheduler) Update(ctx context.Context, id model.ScheduleID, input UpdateInput) (*model.Schedule, error) {
	sched, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.CronExpression != nil {
		if err := validateCron(*input.CronExpression); err != nil {
			return nil, err
		}
		sched.CronExpression = *input.CronExpression
	}
	if input.QueryText != nil {
		sched.QueryText = *input.QueryText
	}
	if input.Enabled != nil {
		sched.Enabled = *input.Enabled
	}
	if input.AlertOnChange != nil {
		sched.AlertOnChange = *input.AlertOnChange
	}
	if input.MaxSources != nil {
		sched.MaxSources = *input.MaxSources
	}
	sched.UpdatedAt = s.now()

	if err := s.repo.PutSchedule(ctx, sched); err != nil {
		return nil, goerr.Wrap(err, "failed to persist schedule update")
	}

	// Reinstall the trigger so expression and enabled changes apply.
	s.uninstall(id)
	if sched.Enabled {
		if err := s.install(ctx, sched); err != nil {
			return nil, goerr.Wrap(err, "failed to install trigger")
		}
	}

	return sched, nil
}

// Delete removes a schedule and its trigger.
func (s *Scheduler) Delete(ctx context.Context, id model.ScheduleID) error {
	if _, err := s.repo.GetSchedule(ctx, id); err != nil {
		return err
	}

	s.uninstall(id)
	return s.repo.DeleteSchedule(ctx, id)
}

// Get returns one schedule.
func (s *Scheduler) Get(ctx context.Context, id model.ScheduleID) (*model.Schedule, error) {
	return s.repo.GetSchedule(ctx, id)
}

// List returns all schedules.
func (s *Scheduler) List(ctx context.Context) ([]*model.Schedule, error) {
	return s.repo.ListSchedules(ctx)
}
