package model

import "time"

// Issue is the unit of work: one reported bug moving through the
// diagnose → suggest patch → validate → create PR pipeline.
type Issue struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	ErrorMessage  string   `json:"error_message,omitempty"`
	Logs          string   `json:"logs,omitempty"`
	RelevantFiles []string `json:"relevant_files,omitempty"`
	Repository    string   `json:"repository,omitempty"`

	// Status and StatusError are mutated only by the workflow runner once a
	// run is active. StatusError is cleared on every successful transition.
	Status      Status  `json:"status"`
	StatusError *string `json:"status_error,omitempty"`

	// Step results. Each is attached by the runner when its step completes
	// and cleared at the start of a re-run.
	Diagnosis         *Diagnosis         `json:"diagnosis,omitempty"`
	PatchSuggestion   *PatchSuggestion   `json:"patch_suggestion,omitempty"`
	ValidationResults *ValidationResults `json:"validation_results,omitempty"`
	PRDetails         *PRDetails         `json:"pr_details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Diagnosis is the root-cause analysis produced by the diagnosis step.
type Diagnosis struct {
	RootCause         string   `json:"root_cause"`
	Summary           string   `json:"summary"`
	SuggestedFixAreas []string `json:"suggested_fix_areas,omitempty"`
	Confidence        float64  `json:"confidence"`
	Model             string   `json:"model,omitempty"`
}

// PatchedFile carries the complete post-patch content of one file.
// Publishing a PR builds its commit actions from these rather than trying
// to re-apply the unified diff.
type PatchedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// PatchSuggestion is the proposed fix. An empty Diff is a legitimate
// negative result: the model found nothing to change.
type PatchSuggestion struct {
	Diff        string        `json:"diff"`
	Explanation string        `json:"explanation,omitempty"`
	Files       []PatchedFile `json:"files,omitempty"`
	Model       string        `json:"model,omitempty"`
}

type ValidationStatus string

const (
	ValidationPassed ValidationStatus = "Passed"
	ValidationFailed ValidationStatus = "Failed"
)

// ValidationCheck is a single entry in the validation battery.
type ValidationCheck struct {
	Check   string `json:"check"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// ValidationResults reports the outcome of validating a patch. Failed is
// data, not a transport error: the validator ran and said no.
type ValidationResults struct {
	Status  ValidationStatus  `json:"status"`
	Summary string            `json:"summary,omitempty"`
	Checks  []ValidationCheck `json:"checks,omitempty"`
}

func (v *ValidationResults) Passed() bool {
	return v != nil && v.Status == ValidationPassed
}

// PRDetails references the pull/merge request opened for a validated patch.
type PRDetails struct {
	URL    string `json:"pr_url"`
	Branch string `json:"branch,omitempty"`
	Title  string `json:"title,omitempty"`
	IID    int64  `json:"iid,omitempty"`
}

// StatusRef is the point-in-time status pair returned by the observation
// API and carried in push events.
type StatusRef struct {
	Status      Status  `json:"status"`
	StatusError *string `json:"status_error"`
}
