package source_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/source"
)

type staticSource struct {
	name string
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Invoke(ctx context.Context, params *source.Params) (any, error) {
	return s.name + " data", nil
}

func TestRegistry(t *testing.T) {
	registry := source.NewRegistry(
		&staticSource{name: "alpha"},
		&staticSource{name: "beta"},
		&staticSource{name: "alpha"}, // duplicate name ignored
	)

	t.Run("get by name", func(t *testing.T) {
		s, err := registry.Get("alpha")
		gt.NoError(t, err)
		gt.V(t, s.Name()).Equal("alpha")
	})

	t.Run("unknown name is not found", func(t *testing.T) {
		_, err := registry.Get("gamma")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrNotFound))
	})

	t.Run("names preserve registration order", func(t *testing.T) {
		gt.V(t, registry.Names()).Equal([]string{"alpha", "beta"})
	})
}

func TestRegistryRanked(t *testing.T) {
	registry := source.NewRegistry(
		&staticSource{name: "flaky"},
		&staticSource{name: "solid"},
	)

	t.Run("no history means base priority", func(t *testing.T) {
		ranked := registry.Ranked()
		gt.A(t, ranked).Length(2)
		gt.V(t, ranked[0].Priority).Equal(1.0)
		gt.V(t, ranked[1].Priority).Equal(1.0)
	})

	t.Run("success rate reorders", func(t *testing.T) {
		registry.Report("flaky", false)
		registry.Report("flaky", true)
		registry.Report("solid", true)
		registry.Report("solid", true)

		ranked := registry.Ranked()
		gt.V(t, ranked[0].Name).Equal("solid")
		gt.V(t, ranked[0].Priority).Equal(1.5)
		gt.V(t, ranked[1].Name).Equal("flaky")
		gt.V(t, ranked[1].Priority).Equal(1.0)
	})

	t.Run("unknown source report ignored", func(t *testing.T) {
		registry.Report("ghost", true)
		gt.A(t, registry.Ranked()).Length(2)
	})
}

func TestRESTSource(t *testing.T) {
	ctx := context.Background()

	t.Run("query and keywords forwarded", func(t *testing.T) {
		var gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("q")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"items": [1, 2]}`))
		}))
		defer srv.Close()

		src, err := source.NewREST(source.RESTConfig{Name: "api", URL: srv.URL})
		gt.NoError(t, err)

		data, err := src.Invoke(ctx, &source.Params{
			Query:    "recent CVEs",
			Keywords: []string{"rce", "critical"},
		})
		gt.NoError(t, err)
		gt.V(t, gotQuery).Equal("recent CVEs rce critical")

		decoded, ok := data.(map[string]any)
		gt.True(t, ok)
		gt.NotNil(t, decoded["items"])
	})

	t.Run("custom query param and headers", func(t *testing.T) {
		var gotSearch, gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotSearch = r.URL.Query().Get("search")
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`[]`))
		}))
		defer srv.Close()

		src, err := source.NewREST(source.RESTConfig{
			Name:       "api",
			URL:        srv.URL,
			QueryParam: "search",
			Headers:    map[string]string{"Authorization": "Bearer token"},
		})
		gt.NoError(t, err)

		_, err = src.Invoke(ctx, &source.Params{Query: "topic"})
		gt.NoError(t, err)
		gt.V(t, gotSearch).Equal("topic")
		gt.V(t, gotAuth).Equal("Bearer token")
	})

	t.Run("server errors are transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		src, err := source.NewREST(source.RESTConfig{Name: "api", URL: srv.URL})
		gt.NoError(t, err)

		_, err = src.Invoke(ctx, &source.Params{Query: "topic"})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrTransient))
	})

	t.Run("client errors are fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		src, err := source.NewREST(source.RESTConfig{Name: "api", URL: srv.URL})
		gt.NoError(t, err)

		_, err = src.Invoke(ctx, &source.Params{Query: "topic"})
		gt.Error(t, err)
		gt.False(t, errors.Is(err, model.ErrTransient))
	})

	t.Run("config validation", func(t *testing.T) {
		_, err := source.NewREST(source.RESTConfig{URL: "http://example.com"})
		gt.True(t, errors.Is(err, model.ErrValidation))

		_, err = source.NewREST(source.RESTConfig{Name: "api"})
		gt.True(t, errors.Is(err, model.ErrValidation))
	})
}
