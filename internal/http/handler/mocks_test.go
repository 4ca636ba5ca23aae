package handler_test

import (
	"context"

	"debugiq.app/backend/internal/model"
	"debugiq.app/backend/internal/service"
)

type mockIssueService struct {
	seedFn            func(ctx context.Context, req service.SeedRequest) (*model.Issue, error)
	ingestFn          func(ctx context.Context, req service.IngestRequest) (*model.Issue, error)
	getFn             func(ctx context.Context, issueID string) (*model.Issue, error)
	getStatusFn       func(ctx context.Context, issueID string) (*model.StatusRef, error)
	listByStatusFn    func(ctx context.Context, statuses ...model.Status) ([]model.Issue, error)
	inboxFn           func(ctx context.Context) ([]model.Issue, error)
	attentionNeededFn func(ctx context.Context) ([]model.Issue, error)
}

func (m *mockIssueService) Seed(ctx context.Context, req service.SeedRequest) (*model.Issue, error) {
	if m.seedFn != nil {
		return m.seedFn(ctx, req)
	}
	return &model.Issue{ID: req.ID, Title: req.Title, Status: model.StatusSeeded}, nil
}

func (m *mockIssueService) Ingest(ctx context.Context, req service.IngestRequest) (*model.Issue, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, req)
	}
	return &model.Issue{ID: "generated", Status: model.StatusNew}, nil
}

func (m *mockIssueService) Get(ctx context.Context, issueID string) (*model.Issue, error) {
	if m.getFn != nil {
		return m.getFn(ctx, issueID)
	}
	return &model.Issue{ID: issueID, Status: model.StatusSeeded}, nil
}

func (m *mockIssueService) GetStatus(ctx context.Context, issueID string) (*model.StatusRef, error) {
	if m.getStatusFn != nil {
		return m.getStatusFn(ctx, issueID)
	}
	return &model.StatusRef{Status: model.StatusSeeded}, nil
}

func (m *mockIssueService) ListByStatus(ctx context.Context, statuses ...model.Status) ([]model.Issue, error) {
	if m.listByStatusFn != nil {
		return m.listByStatusFn(ctx, statuses...)
	}
	return nil, nil
}

func (m *mockIssueService) Inbox(ctx context.Context) ([]model.Issue, error) {
	if m.inboxFn != nil {
		return m.inboxFn(ctx)
	}
	return nil, nil
}

func (m *mockIssueService) AttentionNeeded(ctx context.Context) ([]model.Issue, error) {
	if m.attentionNeededFn != nil {
		return m.attentionNeededFn(ctx)
	}
	return nil, nil
}

type mockWorkflowService struct {
	triggerFn func(ctx context.Context, issueID string) error
}

func (m *mockWorkflowService) Trigger(ctx context.Context, issueID string) error {
	if m.triggerFn != nil {
		return m.triggerFn(ctx, issueID)
	}
	return nil
}
