package alert

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

// routePolicy decides which channels receive an alert. The rego rules
// live under data.alert: `route` yields a set/array of channel names,
// an absent result means no restriction.
type routePolicy struct {
	query *rego.PreparedEvalQuery
}

func loadRoutePolicy(ctx context.Context, policyDir string) (*routePolicy, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := []func(*rego.Rego){rego.Query("data.alert.route")}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare routing policy")
	}

	return &routePolicy{query: &prepared}, nil
}

// route evaluates the policy for one alert. A nil map means the policy
// did not restrict routing.
func (p *routePolicy) route(ctx context.Context, alert *model.Alert) (map[string]bool, error) {
	input := map[string]any{
		"severity":   string(alert.Severity),
		"title":      alert.Title,
		"query":      alert.Query,
		"key_points": alert.KeyPoints,
		"sources":    alert.Sources,
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate routing policy")
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	names, ok := rs[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, nil
	}

	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		if name, ok := n.(string); ok {
			allowed[name] = true
		}
	}
	return allowed, nil
}
