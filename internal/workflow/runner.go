// Package workflow drives an issue through the autonomous debugging
// pipeline: fetch context, diagnose, suggest a patch, validate it, publish
// a pull request. The runner owns the status state machine and the failure
// policy; collaborators do the actual work.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"debugiq.app/backend/common/logger"
	"debugiq.app/backend/internal/collab"
	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/notify"
	"debugiq.app/backend/internal/store"
)

// ErrRunInProgress is returned by Trigger when a run is already active for
// the same issue id.
var ErrRunInProgress = errors.New("workflow run already in progress for this issue")

// Collaborators groups the step implementations the runner drives.
type Collaborators struct {
	Context   collab.ContextProvider
	Diagnoser collab.Diagnoser
	Suggester collab.PatchSuggester
	Validator collab.PatchValidator
	Publisher collab.PullRequestPublisher
}

// Runner executes the debugging workflow for one issue at a time per issue
// id. Runs are spawned onto the supervised registry and detached from the
// triggering request.
type Runner struct {
	store       store.IssueStore
	notifier    notify.Notifier
	collabs     Collaborators
	registry    *Registry
	stepTimeout time.Duration

	mu     sync.Mutex
	active map[string]struct{}
}

func NewRunner(st store.IssueStore, n notify.Notifier, c Collaborators, reg *Registry, stepTimeout time.Duration) *Runner {
	if stepTimeout <= 0 {
		stepTimeout = 2 * time.Minute
	}
	return &Runner{
		store:       st,
		notifier:    n,
		collabs:     c,
		registry:    reg,
		stepTimeout: stepTimeout,
		active:      make(map[string]struct{}),
	}
}

// Trigger starts a workflow run for the issue on a supervised goroutine.
// It returns store.ErrNotFound if the issue does not exist and
// ErrRunInProgress if a run for the same id is already active in this
// process. The call returns as soon as the run is accepted.
func (r *Runner) Trigger(ctx context.Context, issueID string) error {
	if _, err := r.store.Get(ctx, issueID); err != nil {
		return err
	}

	if !r.reserve(issueID) {
		return ErrRunInProgress
	}

	spawned := r.registry.Go("workflow:"+issueID, func(runCtx context.Context) {
		defer r.release(issueID)
		r.run(runCtx, issueID)
	})
	if !spawned {
		r.release(issueID)
		return errors.New("workflow runner is shutting down")
	}
	return nil
}

// Execute runs the workflow synchronously on the caller's goroutine. The
// queue worker uses this so a message is only acknowledged once the run
// has finished.
func (r *Runner) Execute(ctx context.Context, issueID string) error {
	if _, err := r.store.Get(ctx, issueID); err != nil {
		return err
	}
	if !r.reserve(issueID) {
		return ErrRunInProgress
	}
	defer r.release(issueID)

	r.run(ctx, issueID)
	return nil
}

// Running reports whether a run is currently active for the issue id.
func (r *Runner) Running(issueID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[issueID]
	return ok
}

func (r *Runner) reserve(issueID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[issueID]; ok {
		return false
	}
	r.active[issueID] = struct{}{}
	return true
}

func (r *Runner) release(issueID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, issueID)
}

func (r *Runner) run(ctx context.Context, issueID string) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		IssueID:   logger.Ptr(issueID),
		Component: "debugiq.workflow.runner",
	})

	issue, err := r.store.Get(ctx, issueID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load issue for workflow run", "error", err)
		return
	}

	// Entering the pipeline invalidates results from any previous run, so
	// an attached diagnosis always belongs to the run that set the status.
	if !r.setStatus(ctx, issueID, model.StatusFetchingDetails, nil) {
		return
	}
	if err := r.store.ClearResults(ctx, issueID); err != nil {
		slog.ErrorContext(ctx, "failed to clear previous run results", "error", err)
		r.fail(ctx, issueID, err)
		return
	}

	files, err := runStep(r, ctx, collab.StepFetchContext, func(stepCtx context.Context) ([]collab.FileContext, error) {
		return r.collabs.Context.FetchContext(stepCtx, issue)
	})
	if err != nil {
		r.fail(ctx, issueID, err)
		return
	}

	if !r.setStatus(ctx, issueID, model.StatusDiagnosisInProgress, nil) {
		return
	}
	diagnosis, err := runStep(r, ctx, collab.StepDiagnose, func(stepCtx context.Context) (*model.Diagnosis, error) {
		return r.collabs.Diagnoser.Diagnose(stepCtx, issue, files)
	})
	if err != nil {
		r.fail(ctx, issueID, err)
		return
	}
	if err := r.store.AttachDiagnosis(ctx, issueID, diagnosis); err != nil {
		r.fail(ctx, issueID, err)
		return
	}
	if !r.setStatus(ctx, issueID, model.StatusDiagnosisComplete, nil) {
		return
	}

	if !r.setStatus(ctx, issueID, model.StatusPatchSuggestionInProgress, nil) {
		return
	}
	patch, err := runStep(r, ctx, collab.StepSuggestPatch, func(stepCtx context.Context) (*model.PatchSuggestion, error) {
		return r.collabs.Suggester.SuggestPatch(stepCtx, issue, diagnosis, files)
	})
	if err != nil {
		r.fail(ctx, issueID, err)
		return
	}
	if err := r.store.AttachPatchSuggestion(ctx, issueID, patch); err != nil {
		r.fail(ctx, issueID, err)
		return
	}
	if patch.Diff == "" && len(patch.Files) == 0 {
		r.fail(ctx, issueID, &collab.NegativeResult{
			Step:   collab.StepSuggestPatch,
			Reason: "model produced no patch for the diagnosed issue",
		})
		return
	}
	if !r.setStatus(ctx, issueID, model.StatusPatchSuggestionComplete, nil) {
		return
	}

	if !r.setStatus(ctx, issueID, model.StatusPatchValidationInProgress, nil) {
		return
	}
	results, err := runStep(r, ctx, collab.StepValidatePatch, func(stepCtx context.Context) (*model.ValidationResults, error) {
		return r.collabs.Validator.ValidatePatch(stepCtx, issue, patch)
	})
	if err != nil {
		r.fail(ctx, issueID, err)
		return
	}
	if err := r.store.AttachValidationResults(ctx, issueID, results); err != nil {
		r.fail(ctx, issueID, err)
		return
	}
	if !results.Passed() {
		r.fail(ctx, issueID, &collab.NegativeResult{
			Step:   collab.StepValidatePatch,
			Reason: results.Summary,
		})
		return
	}
	if !r.setStatus(ctx, issueID, model.StatusPatchValidated, nil) {
		return
	}

	if !r.setStatus(ctx, issueID, model.StatusPRCreationInProgress, nil) {
		return
	}
	pr, err := runStep(r, ctx, collab.StepPublishPR, func(stepCtx context.Context) (*model.PRDetails, error) {
		return r.collabs.Publisher.PublishPullRequest(stepCtx, issue, patch, diagnosis, results)
	})
	if err != nil {
		r.fail(ctx, issueID, err)
		return
	}
	if err := r.store.AttachPRDetails(ctx, issueID, pr); err != nil {
		r.fail(ctx, issueID, err)
		return
	}
	if !r.setStatus(ctx, issueID, model.StatusPRCreated, nil) {
		return
	}

	slog.InfoContext(ctx, "workflow run completed", "pr_url", pr.URL)
}

// runStep runs one collaborator call under the per-step timeout and wraps
// transport failures so status_error names the step that broke.
func runStep[T any](r *Runner, ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	stepCtx = logger.WithLogFields(stepCtx, logger.LogFields{Step: logger.Ptr(name)})
	slog.InfoContext(stepCtx, "workflow step started")

	start := time.Now()
	result, err := fn(stepCtx)
	if err != nil {
		var neg *collab.NegativeResult
		if !errors.As(err, &neg) {
			err = &collab.TransportError{Step: name, Err: err}
		}
		slog.ErrorContext(stepCtx, "workflow step failed",
			"error", err, "duration_ms", time.Since(start).Milliseconds())
		return result, err
	}

	slog.InfoContext(stepCtx, "workflow step completed",
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// setStatus advances the issue status and publishes the change. A false
// return means the transition was rejected or the issue vanished; the run
// must stop without touching the record further.
func (r *Runner) setStatus(ctx context.Context, issueID string, status model.Status, statusErr *string) bool {
	updated, err := r.store.UpdateStatus(ctx, issueID, status, statusErr)
	if err != nil {
		slog.ErrorContext(ctx, "failed to update issue status",
			"target_status", string(status), "error", err)
		return false
	}

	slog.InfoContext(ctx, "issue status changed", "status", string(status))
	r.notifier.Publish(ctx, notify.StatusEvent{
		IssueID:     issueID,
		Status:      updated.Status,
		StatusError: updated.StatusError,
		UpdatedAt:   updated.UpdatedAt,
	})
	return true
}

func (r *Runner) fail(ctx context.Context, issueID string, cause error) {
	msg := cause.Error()
	r.setStatus(ctx, issueID, model.StatusWorkflowFailed, &msg)
}
