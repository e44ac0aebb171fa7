package source

import (
	"context"
	"os/exec"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServerConfig configures one MCP server connection. Every tool the
// server exposes becomes an individually addressable source named
// "<server>/<tool>".
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   []string          `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// MCPSource exposes a single MCP tool as a Source.
type MCPSource struct {
	name     string
	toolName string
	session  *mcp.ClientSession
}

func (s *MCPSource) Name() string {
	return s.name
}

func (s *MCPSource) Invoke(ctx context.Context, params *Params) (any, error) {
	result, err := s.session.CallTool(ctx, &mcp.CallToolParams{
		Name: s.toolName,
		Arguments: map[string]any{
			"query": params.Query,
		},
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrTransient, err.Error(), goerr.V("source", s.name))
	}
	if result.IsError {
		return nil, goerr.New("tool returned error", goerr.V("source", s.name))
	}

	var texts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	return texts, nil
}

// ConnectMCP connects to an MCP server and returns one source per
// exposed tool. The returned closer shuts the session down.
func ConnectMCP(ctx context.Context, cfg MCPServerConfig) ([]Source, func() error, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "osprey",
		Version: "0.1.0",
	}, nil)

	var transport mcp.Transport
	switch cfg.Transport {
	case "stdio":
		if len(cfg.Command) == 0 {
			return nil, nil, goerr.Wrap(model.ErrValidation, "command is required for stdio transport",
				goerr.V("server", cfg.Name))
		}
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcp.CommandTransport{Command: cmd}

	case "http":
		if cfg.URL == "" {
			return nil, nil, goerr.Wrap(model.ErrValidation, "url is required for http transport",
				goerr.V("server", cfg.Name))
		}
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return nil, nil, goerr.Wrap(model.ErrValidation, "unsupported transport",
			goerr.V("transport", cfg.Transport))
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to connect to MCP server", goerr.V("server", cfg.Name))
	}

	toolsResult, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return nil, nil, goerr.Wrap(err, "failed to list tools", goerr.V("server", cfg.Name))
	}

	sources := make([]Source, 0, len(toolsResult.Tools))
	for _, t := range toolsResult.Tools {
		sources = append(sources, &MCPSource{
			name:     cfg.Name + "/" + t.Name,
			toolName: t.Name,
			session:  session,
		})
	}

	logging.From(ctx).Info("connected MCP server",
		"server", cfg.Name, "tools", len(sources))

	return sources, session.Close, nil
}
