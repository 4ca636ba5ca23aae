package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"debugiq.app/backend/internal/http/dto"
	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/service"
	"debugiq.app/backend/internal/store"
)

type IssueHandler struct {
	issueService service.IssueService
}

func NewIssueHandler(issueService service.IssueService) *IssueHandler {
	return &IssueHandler{issueService: issueService}
}

func (h *IssueHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	issueID := c.Param("id")

	ref, err := h.issueService.GetStatus(ctx, issueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to read issue status", "issue_id", issueID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read issue status"})
		return
	}

	c.JSON(http.StatusOK, dto.IssueStatusResponse{
		IssueID:     issueID,
		Status:      string(ref.Status),
		StatusError: ref.StatusError,
	})
}

func (h *IssueHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	issueID := c.Param("id")

	issue, err := h.issueService.Get(ctx, issueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to read issue", "issue_id", issueID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read issue"})
		return
	}

	c.JSON(http.StatusOK, dto.ToIssueResponse(issue))
}

// List returns issues filtered by a comma-separated status set. Unknown
// status values are rejected rather than silently matching nothing.
func (h *IssueHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	raw := c.Query("status")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status query parameter is required"})
		return
	}

	var statuses []model.Status
	for _, part := range strings.Split(raw, ",") {
		status, err := model.ParseStatus(strings.TrimSpace(part))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		statuses = append(statuses, status)
	}

	issues, err := h.issueService.ListByStatus(ctx, statuses...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list issues", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list issues"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"issues": dto.ToIssueResponses(issues)})
}

func (h *IssueHandler) Inbox(c *gin.Context) {
	ctx := c.Request.Context()

	issues, err := h.issueService.Inbox(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list inbox issues", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list issues"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"issues": dto.ToIssueResponses(issues)})
}

func (h *IssueHandler) AttentionNeeded(c *gin.Context) {
	ctx := c.Request.Context()

	issues, err := h.issueService.AttentionNeeded(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list attention-needed issues", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list issues"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"issues": dto.ToIssueResponses(issues)})
}

// Ingest turns a raw crash report into a triaged issue.
func (h *IssueHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.issueService.Ingest(ctx, service.IngestRequest{
		RawReport:  req.RawReport,
		Repository: req.Repository,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to ingest raw report", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest report"})
		return
	}

	c.JSON(http.StatusCreated, dto.ToIssueResponse(issue))
}
