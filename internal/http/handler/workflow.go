package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"debugiq.app/backend/internal/http/dto"
	"debugiq.app/backend/internal/service"
	"debugiq.app/backend/internal/store"
	"debugiq.app/backend/internal/workflow"
)

type WorkflowHandler struct {
	workflowService service.WorkflowService
	issueService    service.IssueService
}

func NewWorkflowHandler(workflowService service.WorkflowService, issueService service.IssueService) *WorkflowHandler {
	return &WorkflowHandler{
		workflowService: workflowService,
		issueService:    issueService,
	}
}

// Run accepts a workflow trigger and returns before the run makes
// progress. Clients observe the run through the status endpoints.
func (h *WorkflowHandler) Run(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.RunWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.workflowService.Trigger(ctx, req.IssueID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
		case errors.Is(err, workflow.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "workflow already in progress for this issue"})
		default:
			slog.ErrorContext(ctx, "failed to trigger workflow", "issue_id", req.IssueID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to trigger workflow"})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.RunWorkflowResponse{
		IssueID: req.IssueID,
		Message: "workflow accepted",
	})
}

// Seed stores a fully-described issue so a workflow can be run against it
// without going through ingestion.
func (h *WorkflowHandler) Seed(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SeedIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.issueService.Seed(ctx, req.ToSeedRequest())
	if err != nil {
		if errors.Is(err, service.ErrIssueExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "issue id already exists"})
			return
		}
		slog.ErrorContext(ctx, "failed to seed issue", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to seed issue"})
		return
	}

	c.JSON(http.StatusOK, dto.ToIssueResponse(issue))
}
