package collab

import (
	"context"
	"fmt"
	"log/slog"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/internal/model"
)

const prBodySystemPrompt = `You write professional merge request descriptions.
Given an automated bug fix (diagnosis, validation results, diff), produce a
concise description a human reviewer can act on. Plain Markdown, no preamble.`

type prBodyResponse struct {
	Body string `json:"body" jsonschema_description:"The merge request description in Markdown"`
}

var prBodySchema = llm.GenerateSchema[prBodyResponse]()

// GitLabPublisher opens a merge request for a validated patch: a branch off
// the target branch, one commit built from the patched file contents, and
// a merge request whose body is LLM-generated (template fallback).
type GitLabPublisher struct {
	client       *gitlab.Client
	targetBranch string
	bodyLLM      llm.Client // optional
	retry        llm.RetryConfig
}

func NewGitLabPublisher(token, baseURL, targetBranch string, bodyLLM llm.Client) (*GitLabPublisher, error) {
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLabPublisher{
		client:       client,
		targetBranch: targetBranch,
		bodyLLM:      bodyLLM,
		retry:        llm.DefaultRetry(),
	}, nil
}

func (p *GitLabPublisher) PublishPullRequest(ctx context.Context, issue *model.Issue, patch *model.PatchSuggestion, diagnosis *model.Diagnosis, validation *model.ValidationResults) (*model.PRDetails, error) {
	if len(patch.Files) == 0 {
		return nil, fmt.Errorf("patch has no file contents to commit")
	}

	branch := fmt.Sprintf("debugiq/fix-%s", issue.ID)
	title := fmt.Sprintf("Fix: %s", issue.Title)

	_, _, err := p.client.Branches.CreateBranch(issue.Repository, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(branch),
		Ref:    gitlab.Ptr(p.targetBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating branch %s: %w", branch, err)
	}

	actions := make([]*gitlab.CommitActionOptions, 0, len(patch.Files))
	for _, f := range patch.Files {
		actions = append(actions, &gitlab.CommitActionOptions{
			Action:   gitlab.Ptr(gitlab.FileUpdate),
			FilePath: gitlab.Ptr(f.Path),
			Content:  gitlab.Ptr(f.Content),
		})
	}

	_, _, err = p.client.Commits.CreateCommit(issue.Repository, &gitlab.CreateCommitOptions{
		Branch:        gitlab.Ptr(branch),
		CommitMessage: gitlab.Ptr(title),
		Actions:       actions,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("committing patch to %s: %w", branch, err)
	}

	body := p.buildBody(ctx, issue, patch, diagnosis, validation)

	mr, _, err := p.client.MergeRequests.CreateMergeRequest(issue.Repository, &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(title),
		Description:  gitlab.Ptr(body),
		SourceBranch: gitlab.Ptr(branch),
		TargetBranch: gitlab.Ptr(p.targetBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating merge request: %w", err)
	}

	return &model.PRDetails{
		URL:    mr.WebURL,
		Branch: branch,
		Title:  title,
		IID:    int64(mr.IID),
	}, nil
}

func (p *GitLabPublisher) buildBody(ctx context.Context, issue *model.Issue, patch *model.PatchSuggestion, diagnosis *model.Diagnosis, validation *model.ValidationResults) string {
	if p.bodyLLM != nil {
		var resp prBodyResponse
		req := llm.Request{
			SystemPrompt: prBodySystemPrompt,
			UserPrompt: fmt.Sprintf("Issue: %s\n\nDiagnosis:\n%s\n\nValidation:\n%s\n\nDiff:\n%s",
				issue.Title, diagnosis.RootCause, validation.Summary, patch.Diff),
			SchemaName: "pr_body",
			Schema:     prBodySchema,
			MaxTokens:  2048,
		}
		if _, err := llm.ChatWithRetry(ctx, p.bodyLLM, req, &resp, p.retry); err != nil {
			slog.WarnContext(ctx, "pr body generation failed, using fallback template",
				"error", err, "issue_id", issue.ID)
		} else if resp.Body != "" {
			return resp.Body
		}
	}
	return fallbackPRBody(issue, patch, diagnosis, validation)
}

func fallbackPRBody(issue *model.Issue, patch *model.PatchSuggestion, diagnosis *model.Diagnosis, validation *model.ValidationResults) string {
	return fmt.Sprintf(`## DebugIQ Automated Fix

**Issue ID:** %s

### Diagnosis
%s

### Validation Results
%s

### Code Changes
`+"```diff\n%s\n```", issue.ID, diagnosis.Summary, validation.Summary, patch.Diff)
}
