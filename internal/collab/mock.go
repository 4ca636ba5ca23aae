package collab

import (
	"context"
	"fmt"
	"strings"

	"debugiq.app/backend/internal/model"
)

// Mock collaborators keep the server runnable with no LLM or repository
// credentials configured. They produce plausible-shaped output from the
// issue text alone.

type MockDiagnoser struct{}

func (MockDiagnoser) Diagnose(_ context.Context, issue *model.Issue, _ []FileContext) (*model.Diagnosis, error) {
	areas := issue.RelevantFiles
	if len(areas) == 0 {
		areas = []string{"unknown"}
	}
	return &model.Diagnosis{
		RootCause:         fmt.Sprintf("Mock diagnosis for %q: likely regression near %s.", issue.Title, areas[0]),
		Summary:           "Mock diagnosis (no LLM configured).",
		SuggestedFixAreas: areas,
		Confidence:        0.5,
		Model:             "mock",
	}, nil
}

type MockPatchSuggester struct{}

func (MockPatchSuggester) SuggestPatch(_ context.Context, issue *model.Issue, _ *model.Diagnosis, files []FileContext) (*model.PatchSuggestion, error) {
	if len(issue.RelevantFiles) == 0 {
		// No files to patch: a legitimate empty (negative) result.
		return &model.PatchSuggestion{
			Explanation: "No relevant files provided; nothing to patch.",
			Model:       "mock",
		}, nil
	}

	path := issue.RelevantFiles[0]
	content := "// mock patch placeholder\n"
	for _, f := range files {
		if f.Path == path {
			content = f.Content + "\n// mock patch appended\n"
			break
		}
	}

	var diff strings.Builder
	fmt.Fprintf(&diff, "--- a/%s\n+++ b/%s\n@@ mock patch @@\n+// mock patch appended\n", path, path)

	return &model.PatchSuggestion{
		Diff:        diff.String(),
		Explanation: "Mock patch (no LLM configured).",
		Files:       []model.PatchedFile{{Path: path, Content: content}},
		Model:       "mock",
	}, nil
}

type MockPublisher struct{}

func (MockPublisher) PublishPullRequest(_ context.Context, issue *model.Issue, _ *model.PatchSuggestion, _ *model.Diagnosis, _ *model.ValidationResults) (*model.PRDetails, error) {
	branch := fmt.Sprintf("debugiq/fix-%s", issue.ID)
	return &model.PRDetails{
		URL:    fmt.Sprintf("https://example.invalid/%s/-/merge_requests/1", issue.Repository),
		Branch: branch,
		Title:  fmt.Sprintf("Fix: %s", issue.Title),
		IID:    1,
	}, nil
}
