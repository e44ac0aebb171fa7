package source

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Config is the source definition file: REST endpoints, BigQuery
// queries and MCP servers, all loaded at startup.
type Config struct {
	REST     []RESTConfig      `yaml:"rest"`
	BigQuery []BigQueryConfig  `yaml:"bigquery"`
	MCP      []MCPServerConfig `yaml:"mcp"`
}

// Load builds a registry from a YAML source definition file. The
// returned closer releases MCP sessions and BigQuery clients.
func Load(ctx context.Context, path string) (*Registry, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to read source config", goerr.V("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to parse source config", goerr.V("path", path))
	}

	var sources []Source
	var closers []func() error
	closeAll := func() error {
		for _, c := range closers {
			if err := c(); err != nil {
				return err
			}
		}
		return nil
	}

	for _, rc := range cfg.REST {
		src, err := NewREST(rc)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}

	for _, bc := range cfg.BigQuery {
		src, err := NewBigQuery(ctx, bc)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		sources = append(sources, src)
		closers = append(closers, src.Close)
	}

	for _, mc := range cfg.MCP {
		mcpSources, closer, err := ConnectMCP(ctx, mc)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		sources = append(sources, mcpSources...)
		closers = append(closers, closer)
	}

	return NewRegistry(sources...), closeAll, nil
}
