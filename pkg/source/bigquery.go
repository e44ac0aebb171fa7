package source

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"google.golang.org/api/iterator"
)

const defaultMaxRows = 50

// BigQuerySource runs a parameterized SQL template against a dataset.
// The template must reference the refined query text as @query.
type BigQuerySource struct {
	name    string
	client  *bigquery.Client
	sql     string
	maxRows int
}

// BigQueryConfig configures one BigQuery source
type BigQueryConfig struct {
	Name    string `yaml:"name"`
	Project string `yaml:"project"`
	SQL     string `yaml:"sql"`
	MaxRows int    `yaml:"max_rows"`
}

// NewBigQuery creates a BigQuery source from its config
func NewBigQuery(ctx context.Context, cfg BigQueryConfig) (*BigQuerySource, error) {
	if cfg.Name == "" {
		return nil, goerr.Wrap(model.ErrValidation, "source name is required")
	}
	if cfg.SQL == "" {
		return nil, goerr.Wrap(model.ErrValidation, "source sql is required", goerr.V("name", cfg.Name))
	}

	client, err := bigquery.NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.V("project", cfg.Project))
	}

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	return &BigQuerySource{
		name:    cfg.Name,
		client:  client,
		sql:     cfg.SQL,
		maxRows: maxRows,
	}, nil
}

func (s *BigQuerySource) Name() string {
	return s.name
}

func (s *BigQuerySource) Close() error {
	return s.client.Close()
}

func (s *BigQuerySource) Invoke(ctx context.Context, params *Params) (any, error) {
	q := s.client.Query(s.sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "query", Value: params.Query},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return nil, goerr.Wrap(model.ErrTransient, err.Error(), goerr.V("source", s.name))
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, goerr.Wrap(model.ErrTransient, err.Error(), goerr.V("source", s.name))
	}
	if status.Err() != nil {
		return nil, goerr.Wrap(status.Err(), "query execution failed", goerr.V("source", s.name))
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read query result", goerr.V("source", s.name))
	}

	var rows []map[string]any
	for len(rows) < s.maxRows {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate query result", goerr.V("source", s.name))
		}

		rowMap := make(map[string]any, len(row))
		for k, v := range row {
			rowMap[k] = v
		}
		rows = append(rows, rowMap)
	}

	return rows, nil
}
