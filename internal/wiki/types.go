package wiki

// Job status values reported by the documentation backend.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Terminal reports whether a job status will never change again
// within the current run.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Stage is one named step of a generation job's pipeline. Chapter
// stages are named "<parent>_chapter-<n>" and denote fan-out work
// items under the parent stage.
type Stage struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Completed     bool     `json:"completed"`
	ExecutionTime *float64 `json:"execution_time,omitempty"`
}

// JobStatus is the backend's detailed view of one generation job.
// The tracker replaces its local copy wholesale on every poll.
type JobStatus struct {
	RequestID    string  `json:"request_id"`
	Status       string  `json:"status"`
	Title        string  `json:"title"`
	RepoURL      string  `json:"repo_url,omitempty"`
	CurrentStage string  `json:"current_stage,omitempty"`
	Progress     int     `json:"progress"`
	Error        string  `json:"error,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
	CompletedAt  string  `json:"completed_at,omitempty"`
	Stages       []Stage `json:"stages"`
	OutputURL    string  `json:"output_url,omitempty"`
}

// GenerateRequest asks the backend to start (or force-restart) a
// documentation generation job. Request ids are derived by the
// backend from repo_url and title; passing one back is optional.
type GenerateRequest struct {
	RepoURL   string `json:"repo_url"`
	Title     string `json:"title"`
	RequestID string `json:"request_id,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// GenerateResponse acknowledges a generation request.
type GenerateResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// RepoDoc points at the generated documentation set for a repository.
type RepoDoc struct {
	OutputPath string `json:"output_path"`
}
