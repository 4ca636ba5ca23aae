package dto

import (
	"time"

	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/service"
)

type RunWorkflowRequest struct {
	IssueID string `json:"issue_id" binding:"required,min=1,max=255"`
}

type RunWorkflowResponse struct {
	IssueID string `json:"issue_id"`
	Message string `json:"message"`
}

type SeedIssueRequest struct {
	ID            string   `json:"id,omitempty" binding:"omitempty,max=255"`
	Title         string   `json:"title" binding:"required,min=1,max=255"`
	Description   string   `json:"description,omitempty"`
	ErrorMessage  string   `json:"error_message,omitempty"`
	Logs          string   `json:"logs,omitempty"`
	RelevantFiles []string `json:"relevant_files,omitempty"`
	Repository    string   `json:"repository,omitempty" binding:"omitempty,max=512"`
}

func (r SeedIssueRequest) ToSeedRequest() service.SeedRequest {
	return service.SeedRequest{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		ErrorMessage:  r.ErrorMessage,
		Logs:          r.Logs,
		RelevantFiles: r.RelevantFiles,
		Repository:    r.Repository,
	}
}

type IngestIssueRequest struct {
	RawReport  string `json:"raw_report" binding:"required,min=1"`
	Repository string `json:"repository,omitempty" binding:"omitempty,max=512"`
}

type IssueStatusResponse struct {
	IssueID     string  `json:"issue_id"`
	Status      string  `json:"status"`
	StatusError *string `json:"status_error,omitempty"`
}

type IssueResponse struct {
	ID                string                   `json:"id"`
	Title             string                   `json:"title"`
	Description       string                   `json:"description,omitempty"`
	ErrorMessage      string                   `json:"error_message,omitempty"`
	Logs              string                   `json:"logs,omitempty"`
	RelevantFiles     []string                 `json:"relevant_files,omitempty"`
	Repository        string                   `json:"repository,omitempty"`
	Status            string                   `json:"status"`
	StatusError       *string                  `json:"status_error,omitempty"`
	Diagnosis         *model.Diagnosis         `json:"diagnosis,omitempty"`
	PatchSuggestion   *model.PatchSuggestion   `json:"patch_suggestion,omitempty"`
	ValidationResults *model.ValidationResults `json:"validation_results,omitempty"`
	PRDetails         *model.PRDetails         `json:"pr_details,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func ToIssueResponse(issue *model.Issue) *IssueResponse {
	return &IssueResponse{
		ID:                issue.ID,
		Title:             issue.Title,
		Description:       issue.Description,
		ErrorMessage:      issue.ErrorMessage,
		Logs:              issue.Logs,
		RelevantFiles:     issue.RelevantFiles,
		Repository:        issue.Repository,
		Status:            string(issue.Status),
		StatusError:       issue.StatusError,
		Diagnosis:         issue.Diagnosis,
		PatchSuggestion:   issue.PatchSuggestion,
		ValidationResults: issue.ValidationResults,
		PRDetails:         issue.PRDetails,
		CreatedAt:         issue.CreatedAt,
		UpdatedAt:         issue.UpdatedAt,
	}
}

func ToIssueResponses(issues []model.Issue) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for i := range issues {
		out = append(out, *ToIssueResponse(&issues[i]))
	}
	return out
}
