// Package store implements SQLite persistence for tickets, dependency edges,
// and sessions.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode for concurrent reads.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates the tables if they don't exist. Every statement is
// idempotent so it is safe to run on every open.
func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			epic_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_project ON tickets(project_id)`,
		`CREATE TABLE IF NOT EXISTS ticket_dependencies (
			ticket_id TEXT NOT NULL,
			depends_on_ticket_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			PRIMARY KEY (ticket_id, depends_on_ticket_id),
			FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE,
			FOREIGN KEY (depends_on_ticket_id) REFERENCES tickets(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deps_project ON ticket_dependencies(project_id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			epic_id TEXT NOT NULL DEFAULT '',
			story_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			started_at INTEGER,
			ended_at INTEGER,
			completed_at INTEGER,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_scope ON sessions(project_id, epic_id, story_id, status)`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
