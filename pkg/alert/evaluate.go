package alert

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"github.com/m-mizutani/osprey/pkg/notify"
	"github.com/m-mizutani/osprey/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/urgency.md
var urgencyPromptRaw string

var urgencyPromptTmpl = template.Must(template.New("urgency").Parse(urgencyPromptRaw))

// Evaluate assesses a synthesized result for urgency. It returns the
// emitted alert, or nil when the assessment declined or a duplicate
// was suppressed.
func (s *Service) Evaluate(ctx context.Context, query string, synthesis *model.Synthesis) (*model.Alert, error) {
	urgency, err := s.assess(ctx, query, synthesis)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to assess urgency")
	}

	if !urgency.ShouldAlert {
		return nil, nil
	}
	if err := urgency.Severity.Validate(); err != nil {
		return nil, err
	}

	if s.isDuplicate(query, urgency.Title, urgency.KeyPoints) {
		logging.From(ctx).Info("suppressed duplicate alert",
			"title", urgency.Title, "query", query)
		return nil, nil
	}

	alert := &model.Alert{
		ID:        model.NewAlertID(),
		Severity:  urgency.Severity,
		Title:     urgency.Title,
		Message:   urgency.Reason,
		KeyPoints: urgency.KeyPoints,
		Sources:   synthesis.Sources,
		Query:     query,
		CreatedAt: s.now(),
	}
	s.remember(alert)

	channels := s.routeChannels(ctx, alert)
	s.dispatch(ctx, alert, channels)

	return alert, nil
}

// routeChannels applies the rego routing policy when configured,
// otherwise all channels receive the alert.
func (s *Service) routeChannels(ctx context.Context, alert *model.Alert) []notify.Channel {
	if s.policy == nil {
		return s.channels
	}

	allowed, err := s.policy.route(ctx, alert)
	if err != nil {
		logging.From(ctx).Warn("alert routing policy failed, using all channels", "error", err)
		return s.channels
	}
	if allowed == nil {
		return s.channels
	}

	var routed []notify.Channel
	for _, ch := range s.channels {
		if allowed[ch.Name()] {
			routed = append(routed, ch)
		}
	}
	return routed
}

func (s *Service) assess(ctx context.Context, query string, synthesis *model.Synthesis) (*model.Urgency, error) {
	var buf bytes.Buffer
	if err := urgencyPromptTmpl.Execute(&buf, map[string]any{
		"Query":      query,
		"Summary":    synthesis.Summary,
		"Findings":   synthesis.Findings,
		"Confidence": synthesis.Confidence,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute urgency prompt template")
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"should_alert": {
					Type:        genai.TypeBoolean,
					Description: "Whether this result warrants a notification",
				},
				"severity": {
					Type:        genai.TypeString,
					Description: "Alert severity",
					Enum:        []string{"low", "medium", "high", "critical"},
				},
				"title": {
					Type:        genai.TypeString,
					Description: "Short alert title",
				},
				"reason": {
					Type:        genai.TypeString,
					Description: "Why this warrants (or not) a notification",
				},
				"key_points": {
					Type:        genai.TypeArray,
					Description: "Key points an operator needs first",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
			},
			Required: []string{"should_alert", "severity", "title", "reason", "key_points"},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buf.String(), genai.RoleUser),
	}

	var resp *genai.GenerateContentResponse
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var genErr error
		resp, genErr = s.gemini.GenerateContent(ctx, contents, config)
		return genErr
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, goerr.New("invalid response structure from gemini")
	}

	var urgency model.Urgency
	if err := json.Unmarshal([]byte(resp.Candidates[0].Content.Parts[0].Text), &urgency); err != nil {
		return nil, goerr.Wrap(err, "failed to parse urgency assessment")
	}

	return &urgency, nil
}
