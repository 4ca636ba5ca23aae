package collab

import (
	"context"
	"fmt"

	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/internal/model"
)

const patchSystemPrompt = `You are an expert software engineer producing a
minimal fix for a diagnosed bug. Return a unified diff against the provided
file contents, the complete post-patch content of every file you change,
and a short explanation. If the provided context is insufficient to write a
safe fix, return an empty diff and explain why in the explanation field.`

type patchResponse struct {
	Diff        string `json:"diff" jsonschema_description:"Unified diff of the fix; empty when no safe fix is possible"`
	Explanation string `json:"explanation" jsonschema_description:"Why this change fixes the root cause"`
	Files       []struct {
		Path    string `json:"path"`
		Content string `json:"content" jsonschema_description:"Complete post-patch file content"`
	} `json:"files"`
}

var patchSchema = llm.GenerateSchema[patchResponse]()

// LLMPatchSuggester implements PatchSuggester on a structured-output LLM call.
type LLMPatchSuggester struct {
	client    llm.Client
	maxTokens int
	retry     llm.RetryConfig
}

func NewLLMPatchSuggester(client llm.Client, maxTokens int) *LLMPatchSuggester {
	return &LLMPatchSuggester{
		client:    client,
		maxTokens: maxTokens,
		retry:     llm.DefaultRetry(),
	}
}

func (s *LLMPatchSuggester) SuggestPatch(ctx context.Context, issue *model.Issue, diagnosis *model.Diagnosis, files []FileContext) (*model.PatchSuggestion, error) {
	prompt := buildIssuePrompt(issue, files)
	prompt += fmt.Sprintf("\nDiagnosis:\n%s\n", diagnosis.RootCause)
	if len(diagnosis.SuggestedFixAreas) > 0 {
		prompt += fmt.Sprintf("Suggested fix areas: %v\n", diagnosis.SuggestedFixAreas)
	}

	var resp patchResponse
	req := llm.Request{
		SystemPrompt: patchSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "patch_suggestion",
		Schema:       patchSchema,
		MaxTokens:    s.maxTokens,
		Temperature:  llm.Temp(0),
	}

	if _, err := llm.ChatWithRetry(ctx, s.client, req, &resp, s.retry); err != nil {
		return nil, fmt.Errorf("suggesting patch: %w", err)
	}

	patch := &model.PatchSuggestion{
		Diff:        resp.Diff,
		Explanation: resp.Explanation,
		Model:       s.client.Model(),
	}
	for _, f := range resp.Files {
		patch.Files = append(patch.Files, model.PatchedFile{Path: f.Path, Content: f.Content})
	}
	return patch, nil
}
