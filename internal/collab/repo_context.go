package collab

import (
	"context"
	"fmt"
	"log/slog"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"debugiq.app/backend/internal/model"
)

// GitLabContextProvider fetches the issue's relevant files from its
// repository. Missing files are skipped with a warning: a stale path in a
// bug report should not kill the whole run.
type GitLabContextProvider struct {
	client *gitlab.Client
	ref    string
}

func NewGitLabContextProvider(token, baseURL, ref string) (*GitLabContextProvider, error) {
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &GitLabContextProvider{client: client, ref: ref}, nil
}

func (p *GitLabContextProvider) FetchContext(ctx context.Context, issue *model.Issue) ([]FileContext, error) {
	if issue.Repository == "" {
		return nil, fmt.Errorf("issue has no repository")
	}

	var files []FileContext
	for _, path := range issue.RelevantFiles {
		raw, resp, err := p.client.RepositoryFiles.GetRawFile(
			issue.Repository,
			path,
			&gitlab.GetRawFileOptions{Ref: gitlab.Ptr(p.ref)},
			gitlab.WithContext(ctx),
		)
		if err != nil {
			if resp != nil && resp.StatusCode == 404 {
				slog.WarnContext(ctx, "relevant file not found in repository, skipping",
					"issue_id", issue.ID, "path", path, "repository", issue.Repository)
				continue
			}
			return nil, fmt.Errorf("fetching %s from %s: %w", path, issue.Repository, err)
		}
		files = append(files, FileContext{Path: path, Content: string(raw)})
	}
	return files, nil
}

// StaticContextProvider returns no file content. It stands in when no
// repository integration is configured; the LLM steps then work from the
// issue text alone.
type StaticContextProvider struct{}

func (StaticContextProvider) FetchContext(ctx context.Context, issue *model.Issue) ([]FileContext, error) {
	slog.DebugContext(ctx, "no repository integration configured, using issue text only",
		"issue_id", issue.ID)
	return nil, nil
}
