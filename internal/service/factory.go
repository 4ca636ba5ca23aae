package service

import (
	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/internal/store"
)

type Services struct {
	store    store.IssueStore
	triage   llm.Client
	workflow WorkflowService
}

func NewServices(st store.IssueStore, triage llm.Client, wf WorkflowService) *Services {
	return &Services{
		store:    st,
		triage:   triage,
		workflow: wf,
	}
}

func (s *Services) Issues() IssueService {
	return NewIssueService(s.store, s.triage)
}

func (s *Services) Workflow() WorkflowService {
	return s.workflow
}
