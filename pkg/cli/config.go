package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/adapter"
	"github.com/m-mizutani/osprey/pkg/alert"
	"github.com/m-mizutani/osprey/pkg/learning"
	"github.com/m-mizutani/osprey/pkg/memory"
	"github.com/m-mizutani/osprey/pkg/notify"
	"github.com/m-mizutani/osprey/pkg/repository"
	"github.com/m-mizutani/osprey/pkg/source"
	"github.com/m-mizutani/osprey/pkg/usecase/feedback"
	"github.com/m-mizutani/osprey/pkg/usecase/query"
	"github.com/m-mizutani/osprey/pkg/usecase/stats"
	"github.com/urfave/cli/v3"
)

// config holds configuration values shared across commands
type config struct {
	logLevel string

	// Repository
	backend  string
	project  string
	database string

	// Gemini
	geminiProject  string
	geminiLocation string

	// Sources and alerting
	sourceConfig string
	policyDir    string
	alertFile    string
	webhookURL   string

	// Reports
	reportBucket string
	reportDir    string

	threshold float64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("OSPREY_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Repository backend (firestore or mem)",
			Value:       "firestore",
			Sources:     cli.EnvVars("OSPREY_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "sources",
			Usage:       "Path to source definition YAML",
			Sources:     cli.EnvVars("OSPREY_SOURCES"),
			Destination: &cfg.sourceConfig,
		},
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Directory of rego policies for alert routing",
			Sources:     cli.EnvVars("OSPREY_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "alert-file",
			Usage:       "Path for the file alert channel (disabled when empty)",
			Sources:     cli.EnvVars("OSPREY_ALERT_FILE"),
			Destination: &cfg.alertFile,
		},
		&cli.StringFlag{
			Name:        "webhook-url",
			Usage:       "URL for the webhook alert channel (disabled when empty)",
			Sources:     cli.EnvVars("OSPREY_WEBHOOK_URL"),
			Destination: &cfg.webhookURL,
		},
		&cli.StringFlag{
			Name:        "report-bucket",
			Usage:       "GCS bucket for scheduled-run reports",
			Sources:     cli.EnvVars("OSPREY_REPORT_BUCKET"),
			Destination: &cfg.reportBucket,
		},
		&cli.StringFlag{
			Name:        "report-dir",
			Usage:       "Local directory for reports when no bucket is set",
			Value:       "reports",
			Sources:     cli.EnvVars("OSPREY_REPORT_DIR"),
			Destination: &cfg.reportDir,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "Initial confidence threshold",
			Value:       learning.DefaultThreshold,
			Sources:     cli.EnvVars("OSPREY_THRESHOLD"),
			Destination: &cfg.threshold,
		},
	}
}

// newRepository creates the configured repository backend
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.backend {
	case "mem":
		return repository.NewMemStore(), nil
	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required for the firestore backend")
		}
		return repository.NewFirestore(ctx, cfg.project, cfg.database)
	default:
		return nil, goerr.New("unknown repository backend", goerr.V("backend", cfg.backend))
	}
}

// newGemini creates the Gemini adapter
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)
}

// newStorage creates the report archive
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.reportBucket != "" {
		return adapter.NewStorage(ctx, cfg.reportBucket)
	}
	return adapter.NewLocalStorage(cfg.reportDir)
}

// newChannels assembles the configured notification channels
func (cfg *config) newChannels() []notify.Channel {
	channels := []notify.Channel{notify.NewConsole(nil)}
	if cfg.alertFile != "" {
		channels = append(channels, notify.NewFile(cfg.alertFile))
	}
	if cfg.webhookURL != "" {
		channels = append(channels, notify.NewWebhook(cfg.webhookURL))
	}
	return channels
}

// runtime bundles the assembled components behind one build step
type runtime struct {
	repo     repository.Repository
	memories *memory.Store
	learner  *learning.Service
	alerts   *alert.Service
	registry *source.Registry
	reports  adapter.Storage

	queries  *query.UseCase
	feedback *feedback.UseCase
	stats    *stats.UseCase

	close func() error
}

// build assembles the full pipeline from configuration
func (cfg *config) build(ctx context.Context) (*runtime, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, err
	}

	var registry *source.Registry
	closeSources := func() error { return nil }
	if cfg.sourceConfig != "" {
		registry, closeSources, err = source.Load(ctx, cfg.sourceConfig)
		if err != nil {
			return nil, err
		}
	} else {
		registry = source.NewRegistry()
	}

	var alertOpts []alert.Option
	if cfg.policyDir != "" {
		opt, err := alert.WithPolicyDir(ctx, cfg.policyDir)
		if err != nil {
			_ = closeSources()
			return nil, err
		}
		if opt != nil {
			alertOpts = append(alertOpts, opt)
		}
	}
	alerts := alert.New(gemini, cfg.newChannels(), alertOpts...)

	reports, err := cfg.newStorage(ctx)
	if err != nil {
		_ = closeSources()
		return nil, err
	}

	memories := memory.New(repo)
	learner := learning.New(learning.NewThreshold(cfg.threshold))

	return &runtime{
		repo:     repo,
		memories: memories,
		learner:  learner,
		alerts:   alerts,
		registry: registry,
		reports:  reports,
		queries:  query.New(gemini, memories, learner, alerts, registry),
		feedback: feedback.New(memories, learner),
		stats:    stats.New(repo, learner, registry),
		close:    closeSources,
	}, nil
}
