package scheduler

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
	"gopkg.in/yaml.v3"
)

type seedEntry struct {
	Query         string `yaml:"query"`
	Cron          string `yaml:"cron"`
	Enabled       *bool  `yaml:"enabled"`
	AlertOnChange bool   `yaml:"alert_on_change"`
	MaxSources    int    `yaml:"max_sources"`
}

type seedFile struct {
	Schedules []seedEntry `yaml:"schedules"`
}

// LoadSeed creates schedules from a YAML definition file. Entries
// whose query text already exists are skipped, so the file can be
// loaded on every daemon start.
func (s *Scheduler) LoadSeed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return goerr.Wrap(err, "failed to read schedule file", goerr.V("path", path))
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return goerr.Wrap(err, "failed to parse schedule file", goerr.V("path", path))
	}

	existing, err := s.repo.ListSchedules(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, sched := range existing {
		known[sched.QueryText] = true
	}

	for _, entry := range seed.Schedules {
		if known[entry.Query] {
			continue
		}

		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}

		sched, err := s.Create(ctx, CreateInput{
			QueryText:      entry.Query,
			CronExpression: entry.Cron,
			Enabled:        enabled,
			AlertOnChange:  entry.AlertOnChange,
			MaxSources:     entry.MaxSources,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to create seeded schedule", goerr.V("query", entry.Query))
		}
		logging.From(ctx).Info("seeded schedule", "schedule_id", sched.ID, "query", entry.Query)
	}

	return nil
}
