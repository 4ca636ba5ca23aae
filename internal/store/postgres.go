package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"debugiq.app/backend/internal/model"
)

// postgresStore persists issues in a single table with jsonb columns for
// the step results. Schema (see migrations/001_issues.sql):
//
//	issues(id text primary key, title text, description text,
//	       error_message text, logs text, relevant_files text[],
//	       repository text, status text, status_error text,
//	       diagnosis jsonb, patch_suggestion jsonb,
//	       validation_results jsonb, pr_details jsonb,
//	       seq bigserial, created_at timestamptz, updated_at timestamptz)
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres returns an IssueStore backed by the given pool.
func NewPostgres(pool *pgxpool.Pool) IssueStore {
	return &postgresStore{pool: pool}
}

const issueColumns = `id, title, description, error_message, logs, relevant_files,
	repository, status, status_error, diagnosis, patch_suggestion,
	validation_results, pr_details, created_at, updated_at`

func (s *postgresStore) Get(ctx context.Context, id string) (*model.Issue, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1`, id)
	return scanIssue(row)
}

func (s *postgresStore) Put(ctx context.Context, issue *model.Issue) error {
	diagnosis, patch, validation, pr, err := marshalResults(issue)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO issues (id, title, description, error_message, logs,
			relevant_files, repository, status, status_error, diagnosis,
			patch_suggestion, validation_results, pr_details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			error_message = EXCLUDED.error_message,
			logs = EXCLUDED.logs,
			relevant_files = EXCLUDED.relevant_files,
			repository = EXCLUDED.repository,
			status = EXCLUDED.status,
			status_error = EXCLUDED.status_error,
			diagnosis = EXCLUDED.diagnosis,
			patch_suggestion = EXCLUDED.patch_suggestion,
			validation_results = EXCLUDED.validation_results,
			pr_details = EXCLUDED.pr_details,
			updated_at = now()`,
		issue.ID, issue.Title, issue.Description, issue.ErrorMessage, issue.Logs,
		issue.RelevantFiles, issue.Repository, string(issue.Status), issue.StatusError,
		diagnosis, patch, validation, pr)
	if err != nil {
		return fmt.Errorf("upserting issue: %w", err)
	}
	return nil
}

// UpdateStatus reads the current status inside a transaction with a row
// lock, validates the transition in Go, and writes the new status. The row
// lock serializes concurrent status writes for the same id.
func (s *postgresStore) UpdateStatus(ctx context.Context, id string, status model.Status, statusErr *string) (*model.Issue, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM issues WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("locking issue row: %w", err)
	}

	if !model.CanTransition(model.Status(current), status) {
		return nil, ErrIllegalTransition
	}

	row := tx.QueryRow(ctx, `
		UPDATE issues SET status = $2, status_error = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+issueColumns,
		id, string(status), statusErr)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing status update: %w", err)
	}
	return issue, nil
}

func (s *postgresStore) AttachDiagnosis(ctx context.Context, id string, d *model.Diagnosis) error {
	return s.attach(ctx, id, "diagnosis", d)
}

func (s *postgresStore) AttachPatchSuggestion(ctx context.Context, id string, p *model.PatchSuggestion) error {
	return s.attach(ctx, id, "patch_suggestion", p)
}

func (s *postgresStore) AttachValidationResults(ctx context.Context, id string, v *model.ValidationResults) error {
	return s.attach(ctx, id, "validation_results", v)
}

func (s *postgresStore) AttachPRDetails(ctx context.Context, id string, pr *model.PRDetails) error {
	return s.attach(ctx, id, "pr_details", pr)
}

func (s *postgresStore) ClearResults(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE issues SET diagnosis = NULL, patch_suggestion = NULL,
			validation_results = NULL, pr_details = NULL, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clearing results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) QueryByStatus(ctx context.Context, statuses ...model.Status) ([]model.Issue, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE status = ANY($1) ORDER BY seq`,
		values)
	if err != nil {
		return nil, fmt.Errorf("querying issues by status: %w", err)
	}
	defer rows.Close()

	var out []model.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *issue)
	}
	return out, rows.Err()
}

func (s *postgresStore) attach(ctx context.Context, id, column string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", column, err)
	}

	// column is one of four fixed names, never caller input.
	tag, err := s.pool.Exec(ctx,
		`UPDATE issues SET `+column+` = $2, updated_at = now() WHERE id = $1`,
		id, payload)
	if err != nil {
		return fmt.Errorf("attaching %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalResults(issue *model.Issue) (diagnosis, patch, validation, pr []byte, err error) {
	marshal := func(v any) ([]byte, error) {
		if v == nil {
			return nil, nil
		}
		return json.Marshal(v)
	}
	if issue.Diagnosis != nil {
		if diagnosis, err = marshal(issue.Diagnosis); err != nil {
			return
		}
	}
	if issue.PatchSuggestion != nil {
		if patch, err = marshal(issue.PatchSuggestion); err != nil {
			return
		}
	}
	if issue.ValidationResults != nil {
		if validation, err = marshal(issue.ValidationResults); err != nil {
			return
		}
	}
	if issue.PRDetails != nil {
		pr, err = marshal(issue.PRDetails)
	}
	return
}

func scanIssue(row pgx.Row) (*model.Issue, error) {
	var (
		issue      model.Issue
		status     string
		diagnosis  []byte
		patch      []byte
		validation []byte
		pr         []byte
	)
	err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &issue.ErrorMessage,
		&issue.Logs, &issue.RelevantFiles, &issue.Repository, &status,
		&issue.StatusError, &diagnosis, &patch, &validation, &pr,
		&issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning issue: %w", err)
	}
	issue.Status = model.Status(status)

	if len(diagnosis) > 0 {
		if err := json.Unmarshal(diagnosis, &issue.Diagnosis); err != nil {
			return nil, fmt.Errorf("unmarshaling diagnosis: %w", err)
		}
	}
	if len(patch) > 0 {
		if err := json.Unmarshal(patch, &issue.PatchSuggestion); err != nil {
			return nil, fmt.Errorf("unmarshaling patch_suggestion: %w", err)
		}
	}
	if len(validation) > 0 {
		if err := json.Unmarshal(validation, &issue.ValidationResults); err != nil {
			return nil, fmt.Errorf("unmarshaling validation_results: %w", err)
		}
	}
	if len(pr) > 0 {
		if err := json.Unmarshal(pr, &issue.PRDetails); err != nil {
			return nil, fmt.Errorf("unmarshaling pr_details: %w", err)
		}
	}
	return &issue, nil
}
