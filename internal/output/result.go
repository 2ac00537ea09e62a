package output

import "fmt"

type Status string

const (
	// StatusInvalid marks a target that failed the precheck. Any INVALID
	// result aborts the run before the apply phase.
	StatusInvalid Status = "INVALID"

	StatusSkipped   Status = "SKIPPED"
	StatusNoMarker  Status = "NO_MARKER"
	StatusUnchanged Status = "UNCHANGED"
	// StatusChanged is a change that was computed but not written (preview).
	StatusChanged Status = "CHANGED"
	StatusApplied Status = "APPLIED"
	StatusError   Status = "ERROR"
)

// Phase names the batch phase that produced a result.
type Phase string

const (
	PhasePrecheck Phase = "precheck"
	PhaseApply    Phase = "apply"
)

// Result is the decision taken for one target.
type Result struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	File       string `json:"file"`
	DepName    string `json:"dep_name"`
	Phase      Phase  `json:"phase"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`

	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`

	// Set for APPLIED results.
	CommitSHA  string `json:"commit_sha,omitempty"`
	CommitURL  string `json:"commit_url,omitempty"`
	ContentSHA string `json:"content_sha,omitempty"`
}

// Target identifies the result's file as OWNER/REPO@BRANCH:PATH.
func (r Result) Target() string {
	return fmt.Sprintf("%s@%s:%s", r.Repository, r.Branch, r.File)
}

// IsFailure reports whether the status counts against the run.
func (s Status) IsFailure() bool {
	return s == StatusInvalid || s == StatusError
}
