package store

import (
	"context"
	"sync"
	"time"

	"debugiq.app/backend/internal/model"
)

// memoryStore keeps issues in a mutex-protected map with an insertion-order
// index. It is the default store when no database is configured and the
// fixture store for tests.
type memoryStore struct {
	mu     sync.RWMutex
	issues map[string]*model.Issue
	order  []string
	now    func() time.Time
}

// NewMemory returns an in-memory IssueStore.
func NewMemory() IssueStore {
	return &memoryStore{
		issues: make(map[string]*model.Issue),
		now:    time.Now,
	}
}

// NewMemoryWithClock is used by tests that assert on timestamps.
func NewMemoryWithClock(now func() time.Time) IssueStore {
	return &memoryStore{
		issues: make(map[string]*model.Issue),
		now:    now,
	}
}

func (s *memoryStore) Get(_ context.Context, id string) (*model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *issue
	return &cp, nil
}

func (s *memoryStore) Put(_ context.Context, issue *model.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cp := *issue
	if existing, ok := s.issues[issue.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		s.order = append(s.order, issue.ID)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
	}
	cp.UpdatedAt = now
	s.issues[issue.ID] = &cp
	return nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id string, status model.Status, statusErr *string) (*model.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !model.CanTransition(issue.Status, status) {
		return nil, ErrIllegalTransition
	}

	issue.Status = status
	issue.StatusError = statusErr
	issue.UpdatedAt = s.now()

	cp := *issue
	return &cp, nil
}

func (s *memoryStore) AttachDiagnosis(_ context.Context, id string, d *model.Diagnosis) error {
	return s.mutate(id, func(issue *model.Issue) { issue.Diagnosis = d })
}

func (s *memoryStore) AttachPatchSuggestion(_ context.Context, id string, p *model.PatchSuggestion) error {
	return s.mutate(id, func(issue *model.Issue) { issue.PatchSuggestion = p })
}

func (s *memoryStore) AttachValidationResults(_ context.Context, id string, v *model.ValidationResults) error {
	return s.mutate(id, func(issue *model.Issue) { issue.ValidationResults = v })
}

func (s *memoryStore) AttachPRDetails(_ context.Context, id string, pr *model.PRDetails) error {
	return s.mutate(id, func(issue *model.Issue) { issue.PRDetails = pr })
}

func (s *memoryStore) ClearResults(_ context.Context, id string) error {
	return s.mutate(id, func(issue *model.Issue) {
		issue.Diagnosis = nil
		issue.PatchSuggestion = nil
		issue.ValidationResults = nil
		issue.PRDetails = nil
	})
}

func (s *memoryStore) QueryByStatus(_ context.Context, statuses ...model.Status) ([]model.Issue, error) {
	wanted := make(map[model.Status]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Issue
	for _, id := range s.order {
		issue := s.issues[id]
		if _, ok := wanted[issue.Status]; ok {
			out = append(out, *issue)
		}
	}
	return out, nil
}

func (s *memoryStore) mutate(id string, fn func(*model.Issue)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue, ok := s.issues[id]
	if !ok {
		return ErrNotFound
	}
	fn(issue)
	issue.UpdatedAt = s.now()
	return nil
}
