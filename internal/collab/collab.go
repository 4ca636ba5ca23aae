// Package collab defines the step collaborators the workflow runner drives:
// external, slow, fallible operations (LLM calls, repository access, merge
// request creation). The runner owns the failure policy; collaborators just
// return results or errors.
package collab

import (
	"context"
	"fmt"

	"debugiq.app/backend/internal/model"
)

// Step names used in error messages and log fields.
const (
	StepFetchContext  = "fetch_context"
	StepDiagnose      = "diagnose"
	StepSuggestPatch  = "suggest_patch"
	StepValidatePatch = "validate_patch"
	StepPublishPR     = "publish_pr"
)

// FileContext is the content of one repository file relevant to an issue.
type FileContext struct {
	Path    string
	Content string
}

// ContextProvider fetches the repository content the diagnosis and patch
// steps work from.
type ContextProvider interface {
	FetchContext(ctx context.Context, issue *model.Issue) ([]FileContext, error)
}

// Diagnoser analyzes the issue and returns a root-cause diagnosis.
type Diagnoser interface {
	Diagnose(ctx context.Context, issue *model.Issue, files []FileContext) (*model.Diagnosis, error)
}

// PatchSuggester proposes a fix for a diagnosed issue. An empty diff is a
// legitimate negative result, not an error.
type PatchSuggester interface {
	SuggestPatch(ctx context.Context, issue *model.Issue, diagnosis *model.Diagnosis, files []FileContext) (*model.PatchSuggestion, error)
}

// PatchValidator assesses a proposed patch. Passed/Failed is data; an error
// means the validator itself could not run.
type PatchValidator interface {
	ValidatePatch(ctx context.Context, issue *model.Issue, patch *model.PatchSuggestion) (*model.ValidationResults, error)
}

// PullRequestPublisher opens a pull/merge request for a validated patch.
type PullRequestPublisher interface {
	PublishPullRequest(ctx context.Context, issue *model.Issue, patch *model.PatchSuggestion, diagnosis *model.Diagnosis, validation *model.ValidationResults) (*model.PRDetails, error)
}

// TransportError means a step collaborator could not be reached or returned
// a malformed result: network failure, timeout, unparseable model output.
type TransportError struct {
	Step string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NegativeResult means a step collaborator completed and reported a
// negative outcome as data: validation said Failed, or the model returned
// an empty patch. Kept distinct from TransportError so operators can tell
// "the model said no" apart from "we couldn't reach the model".
type NegativeResult struct {
	Step   string
	Reason string
}

func (e *NegativeResult) Error() string {
	return fmt.Sprintf("step %s reported a negative result: %s", e.Step, e.Reason)
}
