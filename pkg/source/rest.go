package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
)

const defaultRESTTimeout = 10 * time.Second

// RESTSource queries a JSON-over-HTTP endpoint. The refined query text
// is passed as the configured query parameter.
type RESTSource struct {
	name       string
	baseURL    string
	queryParam string
	headers    map[string]string
	httpClient *http.Client
}

// RESTConfig configures one REST source
type RESTConfig struct {
	Name       string            `yaml:"name"`
	URL        string            `yaml:"url"`
	QueryParam string            `yaml:"query_param"`
	Headers    map[string]string `yaml:"headers"`
	Timeout    time.Duration     `yaml:"timeout"`
}

// NewREST creates a REST source from its config
func NewREST(cfg RESTConfig) (*RESTSource, error) {
	if cfg.Name == "" {
		return nil, goerr.Wrap(model.ErrValidation, "source name is required")
	}
	if cfg.URL == "" {
		return nil, goerr.Wrap(model.ErrValidation, "source url is required", goerr.V("name", cfg.Name))
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultRESTTimeout
	}
	queryParam := cfg.QueryParam
	if queryParam == "" {
		queryParam = "q"
	}

	return &RESTSource{
		name:       cfg.Name,
		baseURL:    cfg.URL,
		queryParam: queryParam,
		headers:    cfg.Headers,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (s *RESTSource) Name() string {
	return s.name
}

func (s *RESTSource) Invoke(ctx context.Context, params *Params) (any, error) {
	endpoint, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid source url", goerr.V("url", s.baseURL))
	}

	q := endpoint.Query()
	query := params.Query
	if len(params.Keywords) > 0 {
		query = query + " " + strings.Join(params.Keywords, " ")
	}
	q.Set(s.queryParam, query)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(model.ErrTransient, err.Error(), goerr.V("source", s.name))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response body", goerr.V("source", s.name))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, goerr.Wrap(model.ErrTransient, "source returned retryable status",
			goerr.V("source", s.name), goerr.V("status", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, goerr.New("source returned error status",
			goerr.V("source", s.name), goerr.V("status", resp.StatusCode))
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, goerr.Wrap(err, "failed to decode response", goerr.V("source", s.name))
	}

	return result, nil
}
