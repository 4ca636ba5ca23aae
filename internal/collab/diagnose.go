package collab

import (
	"context"
	"fmt"
	"strings"

	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/internal/model"
)

const diagnoseSystemPrompt = `You are an expert software debugger. Given a bug
report (title, description, error message, logs) and the content of the
files suspected to be involved, identify the most likely root cause.
Be specific: name the file, function and line range when the evidence
supports it. Confidence is your own estimate between 0 and 1.`

type diagnosisResponse struct {
	RootCause         string   `json:"root_cause" jsonschema_description:"One-paragraph root cause analysis"`
	Summary           string   `json:"summary" jsonschema_description:"Short summary suitable for a status line"`
	SuggestedFixAreas []string `json:"suggested_fix_areas" jsonschema_description:"File paths, optionally with #line anchors, where the fix belongs"`
	Confidence        float64  `json:"confidence" jsonschema_description:"Estimate between 0 and 1"`
}

var diagnosisSchema = llm.GenerateSchema[diagnosisResponse]()

// LLMDiagnoser implements Diagnoser on a structured-output LLM call.
type LLMDiagnoser struct {
	client    llm.Client
	maxTokens int
	retry     llm.RetryConfig
}

func NewLLMDiagnoser(client llm.Client, maxTokens int) *LLMDiagnoser {
	return &LLMDiagnoser{
		client:    client,
		maxTokens: maxTokens,
		retry:     llm.DefaultRetry(),
	}
}

func (d *LLMDiagnoser) Diagnose(ctx context.Context, issue *model.Issue, files []FileContext) (*model.Diagnosis, error) {
	var resp diagnosisResponse
	req := llm.Request{
		SystemPrompt: diagnoseSystemPrompt,
		UserPrompt:   buildIssuePrompt(issue, files),
		SchemaName:   "diagnosis",
		Schema:       diagnosisSchema,
		MaxTokens:    d.maxTokens,
		Temperature:  llm.Temp(0),
	}

	if _, err := llm.ChatWithRetry(ctx, d.client, req, &resp, d.retry); err != nil {
		return nil, fmt.Errorf("diagnosing issue: %w", err)
	}
	if resp.RootCause == "" {
		return nil, fmt.Errorf("diagnosis response missing root cause")
	}

	return &model.Diagnosis{
		RootCause:         resp.RootCause,
		Summary:           resp.Summary,
		SuggestedFixAreas: resp.SuggestedFixAreas,
		Confidence:        resp.Confidence,
		Model:             d.client.Model(),
	}, nil
}

func buildIssuePrompt(issue *model.Issue, files []FileContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", issue.Title)
	if issue.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", issue.Description)
	}
	if issue.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error message:\n%s\n", issue.ErrorMessage)
	}
	if issue.Logs != "" {
		fmt.Fprintf(&b, "Logs:\n%s\n", issue.Logs)
	}
	if issue.Repository != "" {
		fmt.Fprintf(&b, "Repository: %s\n", issue.Repository)
	}
	for _, f := range files {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Path, f.Content)
	}
	return b.String()
}
