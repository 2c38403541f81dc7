package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// JobRecord is one locally remembered generation job. The backend is
// the source of truth for live status; this history exists so the CLI
// can list past jobs and re-open them by request id.
type JobRecord struct {
	ID          string
	RequestID   string
	RepoURL     string
	Title       string
	Status      string // "pending", "running", "completed", "failed"
	OutputURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time // zero when not completed
}

// MCPServerConfig is the persisted MCP server setting forwarded with
// chat requests.
type MCPServerConfig struct {
	URL  string
	Auth string
}
