package query

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/osprey/pkg/model"
	"google.golang.org/genai"
)

//go:embed prompt/synthesize.md
var synthesizePromptRaw string

var synthesizePromptTmpl = template.Must(template.New("synthesize").Parse(synthesizePromptRaw))

// synthesize folds the successful source results and neighbor context
// into a combined answer via the reasoning capability.
func (uc *UseCase) synthesize(ctx context.Context, queryText string, refinement *model.Refinement, neighbors []*model.Neighbor, results []*model.SourceResult) (*model.Synthesis, error) {
	type promptSource struct {
		Name string
		Data string
	}

	var succeeded []promptSource
	var failed []string
	for _, r := range results {
		if !r.Succeeded() {
			failed = append(failed, r.Source)
			continue
		}
		data, err := json.Marshal(r.Data)
		if err != nil {
			data = []byte(fmt.Sprintf("%v", r.Data))
		}
		succeeded = append(succeeded, promptSource{Name: r.Source, Data: string(data)})
	}

	var neighborLines []string
	for _, n := range neighbors {
		if n.Memory.Summary == nil {
			continue
		}
		neighborLines = append(neighborLines,
			fmt.Sprintf("%s (relevance %.1f): %s", n.Memory.QueryText, n.Memory.Relevance, n.Memory.Summary.Summary))
	}

	var suggestions []string
	if refinement != nil && !refinement.Advisory() {
		suggestions = refinement.Suggestions
	}

	var buf bytes.Buffer
	if err := synthesizePromptTmpl.Execute(&buf, map[string]any{
		"Query":         queryText,
		"Suggestions":   suggestions,
		"Sources":       succeeded,
		"FailedSources": failed,
		"Neighbors":     neighborLines,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute synthesize prompt template")
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"summary": {
					Type:        genai.TypeString,
					Description: "Concise answer to the query",
				},
				"findings": {
					Type:        genai.TypeArray,
					Description: "Individual findings supporting the summary",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
				"confidence": {
					Type:        genai.TypeNumber,
					Description: "Confidence in [0,1] reflecting source coverage and agreement",
				},
			},
			Required: []string{"summary", "findings", "confidence"},
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

	var synthesis model.Synthesis
	if err := json.Unmarshal([]byte(resp.Candidates[0].Content.Parts[0].Text), &synthesis); err != nil {
		return nil, goerr.Wrap(err, "failed to parse synthesis")
	}

	if synthesis.Confidence < 0 {
		synthesis.Confidence = 0
	}
	if synthesis.Confidence > 1 {
		synthesis.Confidence = 1
	}
	synthesis.Sources = succeededNames(results)
	if len(failed) > 0 {
		synthesis.Note = fmt.Sprintf("%d of %d sources unavailable", len(failed), len(results))
	}

	return &synthesis, nil
}

// fallbackSynthesis is returned when the reasoning capability is
// unavailable: the raw source outcomes with a floor confidence and an
// explicit note, instead of a failed request.
func fallbackSynthesis(results []*model.SourceResult) *model.Synthesis {
	names := succeededNames(results)
	findings := make([]string, 0, len(names))
	for _, name := range names {
		findings = append(findings, "raw result available from "+name)
	}

	return &model.Synthesis{
		Summary:    "synthesis unavailable; raw source results attached",
		Findings:   findings,
		Confidence: 0.1,
		Sources:    names,
		Note:       "reasoning capability unavailable, answer not synthesized",
	}
}

func succeededNames(results []*model.SourceResult) []string {
	var names []string
	for _, r := range results {
		if r.Succeeded() {
			names = append(names, r.Source)
		}
	}
	return names
}
