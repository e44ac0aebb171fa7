package query

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/intent.md
var intentPromptRaw string

var intentPromptTmpl = template.Must(template.New("intent").Parse(intentPromptRaw))

func (uc *UseCase) parseIntent(ctx context.Context, queryText string) (*model.Intent, error) {
	var buf bytes.Buffer
	if err := intentPromptTmpl.Execute(&buf, map[string]any{
		"Query": queryText,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute intent prompt template")
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"topic": {
					Type:        genai.TypeString,
					Description: "Central topic of the query",
				},
				"keywords": {
					Type:        genai.TypeArray,
					Description: "Keywords to drive source queries",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
				"time_range": {
					Type:        genai.TypeString,
					Description: "Implied time range, empty when none",
				},
			},
			Required: []string{"topic", "keywords"},
		},
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buf.String(), genai.RoleUser),
	}

	var resp *genai.GenerateContentResponse
	err := uc.retry.Do(ctx, func(ctx context.Context) error {
		var genErr error
		resp, genErr = uc.gemini.GenerateContent(ctx, contents, config)
		return genErr
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, goerr.New("invalid response structure from gemini")
	}

	var intent model.Intent
	if err := json.Unmarshal([]byte(resp.Candidates[0].Content.Parts[0].Text), &intent); err != nil {
		return nil, goerr.Wrap(err, "failed to parse intent")
	}

	return &intent, nil
}

func (uc *UseCase) embed(ctx context.Context, text string) (firestore.Vector32, error) {
	var vec []float32
	err := uc.retry.Do(ctx, func(ctx context.Context) error {
		var embErr error
		vec, embErr = uc.gemini.Embedding(ctx, text)
		return embErr
	})
	if err != nil {
		return nil, err
	}
	return firestore.Vector32(vec), nil
}
