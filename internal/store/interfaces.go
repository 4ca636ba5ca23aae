package store

import (
	"context"
	"errors"

	"debugiq.app/backend/internal/model"
)

// ErrNotFound is returned when a requested issue does not exist.
var ErrNotFound = errors.New("not found")

// ErrIllegalTransition is returned when a status write would violate the
// transition table, including any write that would revert an active run to
// an earlier state.
var ErrIllegalTransition = errors.New("illegal status transition")

// IssueStore is the single source of truth for issue state. Implementations
// must support concurrent reads and concurrent writes to different issue
// ids; writes to the same id are serialized internally.
type IssueStore interface {
	Get(ctx context.Context, id string) (*model.Issue, error)
	// Put creates or fully overwrites an issue record. Used by seeding and
	// ingestion; the workflow runner never calls it.
	Put(ctx context.Context, issue *model.Issue) error
	// UpdateStatus moves an issue to the given status, validating the
	// transition table. A nil statusErr clears any stale status_error.
	// Returns the updated issue so callers can publish its updated_at.
	UpdateStatus(ctx context.Context, id string, status model.Status, statusErr *string) (*model.Issue, error)

	AttachDiagnosis(ctx context.Context, id string, d *model.Diagnosis) error
	AttachPatchSuggestion(ctx context.Context, id string, p *model.PatchSuggestion) error
	AttachValidationResults(ctx context.Context, id string, v *model.ValidationResults) error
	AttachPRDetails(ctx context.Context, id string, pr *model.PRDetails) error
	// ClearResults removes all step results at the start of a re-run so a
	// stale diagnosis never coexists with a pre-diagnosis status.
	ClearResults(ctx context.Context, id string) error

	// QueryByStatus returns issues whose status is in the given set, in
	// insertion order.
	QueryByStatus(ctx context.Context, statuses ...model.Status) ([]model.Issue, error)
}
