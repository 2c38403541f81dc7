package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding job history and settings.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs
// pending migrations. Pass ":memory:" as dataDir for an in-memory
// database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "wikigen.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Jobs ---

// SaveJob inserts a job record, or updates the existing record for
// the same request id (request ids are stable per repo/title pair).
func (s *Store) SaveJob(j JobRecord) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, request_id, repo_url, title, status, output_url, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			status = excluded.status,
			output_url = excluded.output_url,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at`,
		j.ID, j.RequestID, j.RepoURL, j.Title, j.Status, j.OutputURL,
		createdAt.Format(time.RFC3339Nano), now, formatNullable(j.CompletedAt),
	)
	return err
}

// UpdateJobStatus updates status, output url, and completion time of
// the record for requestID.
func (s *Store) UpdateJobStatus(requestID, status, outputURL string, completedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, output_url = ?, completed_at = ?, updated_at = ?
		WHERE request_id = ?`,
		status, outputURL, formatNullable(completedAt),
		time.Now().UTC().Format(time.RFC3339Nano), requestID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob returns the record for requestID.
func (s *Store) GetJob(requestID string) (JobRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, request_id, repo_url, title, status, output_url, created_at, updated_at, completed_at
		FROM jobs WHERE request_id = ?`, requestID)
	return scanJob(row)
}

// ListJobs returns up to limit records, most recently updated first.
func (s *Store) ListJobs(limit int) ([]JobRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, request_id, repo_url, title, status, output_url, created_at, updated_at, completed_at
		FROM jobs ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (JobRecord, error) {
	var j JobRecord
	var createdAt, updatedAt, completedAt string
	err := row.Scan(&j.ID, &j.RequestID, &j.RepoURL, &j.Title, &j.Status, &j.OutputURL, &createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return JobRecord{}, ErrNotFound
	}
	if err != nil {
		return JobRecord{}, err
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return JobRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return JobRecord{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	if completedAt != "" {
		if j.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return JobRecord{}, fmt.Errorf("parsing completed_at: %w", err)
		}
	}
	return j, nil
}

func formatNullable(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// --- Settings ---

const (
	mcpURLKey  = "mcp_server.url"
	mcpAuthKey = "mcp_server.auth"
)

// SaveMCPServer persists the MCP server configuration forwarded with
// chat requests.
func (s *Store) SaveMCPServer(cfg MCPServerConfig) error {
	if err := s.setSetting(mcpURLKey, cfg.URL); err != nil {
		return err
	}
	return s.setSetting(mcpAuthKey, cfg.Auth)
}

// GetMCPServer returns the persisted MCP server configuration, or
// ErrNotFound when none is configured.
func (s *Store) GetMCPServer() (MCPServerConfig, error) {
	url, err := s.getSetting(mcpURLKey)
	if err != nil {
		return MCPServerConfig{}, err
	}
	auth, err := s.getSetting(mcpAuthKey)
	if err != nil && err != ErrNotFound {
		return MCPServerConfig{}, err
	}
	return MCPServerConfig{URL: url, Auth: auth}, nil
}

// ClearMCPServer removes the persisted MCP server configuration.
func (s *Store) ClearMCPServer() error {
	for _, key := range []string{mcpURLKey, mcpAuthKey} {
		if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) setSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) getSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}
