package model

import "fmt"

// Status is the workflow state of an issue. The set is closed: every write
// goes through the transition table below, so a typo'd status string or an
// out-of-order write is an error instead of a silent corruption.
type Status string

const (
	StatusNew    Status = "New"
	StatusSeeded Status = "Seeded"

	StatusFetchingDetails           Status = "Fetching Details"
	StatusDiagnosisInProgress       Status = "Diagnosis in Progress"
	StatusDiagnosisComplete         Status = "Diagnosis Complete"
	StatusPatchSuggestionInProgress Status = "Patch Suggestion in Progress"
	StatusPatchSuggestionComplete   Status = "Patch Suggestion Complete"
	StatusPatchValidationInProgress Status = "Patch Validation in Progress"
	StatusPatchValidated            Status = "Patch Validated"
	StatusPRCreationInProgress      Status = "PR Creation in Progress"

	// Terminal states. A new run may still be triggered manually, which
	// re-enters the chain at Fetching Details.
	StatusPRCreated      Status = "PR Created - Awaiting Review/QA"
	StatusWorkflowFailed Status = "Workflow Failed"
)

// transitions maps each status to the set of statuses it may move to.
var transitions = map[Status][]Status{
	StatusNew:                       {StatusFetchingDetails},
	StatusSeeded:                    {StatusFetchingDetails},
	StatusFetchingDetails:           {StatusDiagnosisInProgress, StatusWorkflowFailed},
	StatusDiagnosisInProgress:       {StatusDiagnosisComplete, StatusWorkflowFailed},
	StatusDiagnosisComplete:         {StatusPatchSuggestionInProgress, StatusWorkflowFailed},
	StatusPatchSuggestionInProgress: {StatusPatchSuggestionComplete, StatusWorkflowFailed},
	StatusPatchSuggestionComplete:   {StatusPatchValidationInProgress, StatusWorkflowFailed},
	StatusPatchValidationInProgress: {StatusPatchValidated, StatusWorkflowFailed},
	StatusPatchValidated:            {StatusPRCreationInProgress, StatusWorkflowFailed},
	StatusPRCreationInProgress:      {StatusPRCreated, StatusWorkflowFailed},
	StatusPRCreated:                 {StatusFetchingDetails},
	StatusWorkflowFailed:            {StatusFetchingDetails},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves the status.
func (s Status) IsTerminal() bool {
	return s == StatusPRCreated || s == StatusWorkflowFailed
}

// IsInProgress reports whether the status belongs to an active workflow run.
func (s Status) IsInProgress() bool {
	switch s {
	case StatusFetchingDetails,
		StatusDiagnosisInProgress,
		StatusDiagnosisComplete,
		StatusPatchSuggestionInProgress,
		StatusPatchSuggestionComplete,
		StatusPatchValidationInProgress,
		StatusPatchValidated,
		StatusPRCreationInProgress:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// ParseStatus validates a raw status string from an API caller.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// InboxStatuses is the set shown in the issues inbox: work that has not
// entered the workflow yet.
func InboxStatuses() []Status {
	return []Status{StatusNew, StatusSeeded}
}

// AttentionStatuses is the set surfaced in the attention-needed view.
func AttentionStatuses() []Status {
	return []Status{StatusWorkflowFailed}
}
