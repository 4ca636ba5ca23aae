package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"debugiq.app/backend/common/id"
	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/store"
)

// ErrIssueExists is returned when seeding reuses an existing issue id.
var ErrIssueExists = errors.New("issue id already exists")

type SeedRequest struct {
	ID            string
	Title         string
	Description   string
	ErrorMessage  string
	Logs          string
	RelevantFiles []string
	Repository    string
}

type IngestRequest struct {
	RawReport  string
	Repository string
}

type IssueService interface {
	// Seed stores a fully-described issue in Seeded status. The id is
	// generated when the request omits one; reusing an existing id is a
	// conflict, never an overwrite.
	Seed(ctx context.Context, req SeedRequest) (*model.Issue, error)
	// Ingest triages a raw crash report into a structured issue in New
	// status. Triage uses the configured model and falls back to
	// heuristics when none is available.
	Ingest(ctx context.Context, req IngestRequest) (*model.Issue, error)
	Get(ctx context.Context, issueID string) (*model.Issue, error)
	GetStatus(ctx context.Context, issueID string) (*model.StatusRef, error)
	ListByStatus(ctx context.Context, statuses ...model.Status) ([]model.Issue, error)
	Inbox(ctx context.Context) ([]model.Issue, error)
	AttentionNeeded(ctx context.Context) ([]model.Issue, error)
}

type issueService struct {
	store  store.IssueStore
	triage llm.Client // nil when no triage model is configured
}

func NewIssueService(st store.IssueStore, triage llm.Client) IssueService {
	return &issueService{store: st, triage: triage}
}

func (s *issueService) Seed(ctx context.Context, req SeedRequest) (*model.Issue, error) {
	issueID := req.ID
	if issueID == "" {
		issueID = id.NewString()
	} else {
		if _, err := s.store.Get(ctx, issueID); err == nil {
			return nil, ErrIssueExists
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("checking issue id: %w", err)
		}
	}

	issue := &model.Issue{
		ID:            issueID,
		Title:         req.Title,
		Description:   req.Description,
		ErrorMessage:  req.ErrorMessage,
		Logs:          req.Logs,
		RelevantFiles: req.RelevantFiles,
		Repository:    req.Repository,
		Status:        model.StatusSeeded,
	}
	if err := s.store.Put(ctx, issue); err != nil {
		return nil, fmt.Errorf("storing seeded issue: %w", err)
	}

	slog.InfoContext(ctx, "issue seeded", "issue_id", issueID)
	return s.store.Get(ctx, issueID)
}

func (s *issueService) Ingest(ctx context.Context, req IngestRequest) (*model.Issue, error) {
	if strings.TrimSpace(req.RawReport) == "" {
		return nil, errors.New("raw report is empty")
	}

	triaged := s.triageReport(ctx, req.RawReport)

	issue := &model.Issue{
		ID:            id.NewString(),
		Title:         triaged.Title,
		Description:   triaged.Description,
		ErrorMessage:  triaged.ErrorMessage,
		Logs:          req.RawReport,
		RelevantFiles: triaged.RelevantFiles,
		Repository:    req.Repository,
		Status:        model.StatusNew,
	}
	if err := s.store.Put(ctx, issue); err != nil {
		return nil, fmt.Errorf("storing triaged issue: %w", err)
	}

	slog.InfoContext(ctx, "raw report triaged into issue", "issue_id", issue.ID)
	return s.store.Get(ctx, issue.ID)
}

func (s *issueService) Get(ctx context.Context, issueID string) (*model.Issue, error) {
	return s.store.Get(ctx, issueID)
}

func (s *issueService) GetStatus(ctx context.Context, issueID string) (*model.StatusRef, error) {
	issue, err := s.store.Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	return &model.StatusRef{Status: issue.Status, StatusError: issue.StatusError}, nil
}

func (s *issueService) ListByStatus(ctx context.Context, statuses ...model.Status) ([]model.Issue, error) {
	return s.store.QueryByStatus(ctx, statuses...)
}

func (s *issueService) Inbox(ctx context.Context) ([]model.Issue, error) {
	return s.store.QueryByStatus(ctx, model.InboxStatuses()...)
}

func (s *issueService) AttentionNeeded(ctx context.Context) ([]model.Issue, error) {
	return s.store.QueryByStatus(ctx, model.AttentionStatuses()...)
}

type triageResult struct {
	Title         string   `json:"title" jsonschema_description:"Short imperative summary of the failure, at most 80 characters"`
	Description   string   `json:"description" jsonschema_description:"What happened and under which conditions, in plain prose"`
	ErrorMessage  string   `json:"error_message" jsonschema_description:"The primary error or exception line from the report, verbatim"`
	RelevantFiles []string `json:"relevant_files" jsonschema_description:"Source file paths mentioned in the report, most relevant first"`
}

const triageSystemPrompt = `You are a triage assistant for an autonomous debugging system.
You receive a raw crash or bug report and extract a structured issue from it.
Quote error messages verbatim. Only list file paths that actually appear in the report.`

func (s *issueService) triageReport(ctx context.Context, raw string) triageResult {
	if s.triage == nil {
		return heuristicTriage(raw)
	}

	var result triageResult
	req := llm.Request{
		SystemPrompt: triageSystemPrompt,
		UserPrompt:   fmt.Sprintf("Raw report:\n\n%s", raw),
		SchemaName:   "issue_triage",
		Schema:       llm.GenerateSchema[triageResult](),
		Temperature:  llm.Temp(0),
	}

	triageCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := llm.ChatWithRetry(triageCtx, s.triage, req, &result, llm.DefaultRetry()); err != nil {
		slog.WarnContext(ctx, "model triage failed, falling back to heuristics", "error", err)
		return heuristicTriage(raw)
	}
	if result.Title == "" {
		slog.WarnContext(ctx, "model triage returned no title, falling back to heuristics")
		return heuristicTriage(raw)
	}
	return result
}

var (
	errorLinePattern = regexp.MustCompile(`(?i)\b(error|exception|panic|fatal|traceback)\b`)
	filePathPattern  = regexp.MustCompile(`[\w./-]+\.(?:go|py|js|ts|tsx|jsx|java|rb|rs|c|cc|cpp|h|hpp|cs|php|sql)\b`)
)

// heuristicTriage extracts a best-effort issue from a raw report without a
// model: first non-empty line becomes the title, the first error-looking
// line the error message, and any path-like tokens the relevant files.
func heuristicTriage(raw string) triageResult {
	result := triageResult{Description: strings.TrimSpace(raw)}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if result.Title == "" {
			result.Title = truncateLine(line, 80)
		}
		if result.ErrorMessage == "" && errorLinePattern.MatchString(line) {
			result.ErrorMessage = line
		}
	}
	if result.Title == "" {
		result.Title = "Untitled report"
	}

	seen := make(map[string]struct{})
	for _, path := range filePathPattern.FindAllString(raw, -1) {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result.RelevantFiles = append(result.RelevantFiles, path)
	}
	return result
}

// truncateLine cuts on a rune boundary so a multi-byte character at the
// limit never yields an invalid-UTF-8 title.
func truncateLine(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max-3 {
		return s
	}
	return string(runes[:max-3]) + "..."
}
