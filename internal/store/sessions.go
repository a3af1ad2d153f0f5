package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/forgeline-io/forgeline/internal/models"
)

// ErrSessionNotFound is returned when an operation targets a session absent
// from the store.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore handles session CRUD on SQLite, including the concurrency
// guard that enforces at most one active session per contention scope.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// terminalStatuses is inlined into guard queries; a scope is free when no
// session in it has a status outside this set.
const terminalStatuses = `('completed', 'failed', 'cancelled')`

// GuardResult is the outcome of a guarded insert attempt.
type GuardResult struct {
	Inserted    bool
	Conflicting *models.Session // set when Inserted is false
}

// InsertRunningSessionWithGuard atomically checks for an existing session in
// the candidate's scope with a non-terminal status and, if none exists,
// inserts the candidate. The check-and-insert is a single conditional INSERT
// so it stays correct under concurrent requests for the same scope. On
// conflict nothing is mutated and the existing session is returned.
func (s *SessionStore) InsertRunningSessionWithGuard(ctx context.Context, sess *models.Session) (*GuardResult, error) {
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, epic_id, story_id, status, mode, provider,
			started_at, ended_at, completed_at, error, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, '', ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM sessions
			WHERE project_id = ? AND epic_id = ? AND story_id = ?
			AND status NOT IN `+terminalStatuses+`
		)
	`, sess.ID, sess.ProjectID, sess.EpicID, sess.StoryID, sess.Status, sess.Mode, sess.Provider,
		sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
		sess.ProjectID, sess.EpicID, sess.StoryID)
	if err != nil {
		return nil, fmt.Errorf("guarded insert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("guarded insert rows: %w", err)
	}
	if n == 1 {
		return &GuardResult{Inserted: true}, nil
	}

	existing, err := s.activeInScope(ctx, sess.Scope())
	if err != nil {
		return nil, err
	}
	return &GuardResult{Inserted: false, Conflicting: existing}, nil
}

// activeInScope returns the non-terminal session occupying a scope, if any.
func (s *SessionStore) activeInScope(ctx context.Context, scope models.Scope) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE project_id = ? AND epic_id = ? AND story_id = ?
		AND status NOT IN `+terminalStatuses+`
		LIMIT 1
	`, scope.ProjectID, scope.EpicID, scope.StoryID)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sess, err
}

const sessionColumns = `id, project_id, epic_id, story_id, status, mode, provider,
	started_at, ended_at, completed_at, error, created_at, updated_at`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var status string
	var startedAt, endedAt, completedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.EpicID, &sess.StoryID, &status,
		&sess.Mode, &sess.Provider, &startedAt, &endedAt, &completedAt, &sess.Error,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sess.Status = models.NormalizeStatus(status)
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		sess.StartedAt = &t
	}
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0).UTC()
		sess.EndedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		sess.CompletedAt = &t
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sess, nil
}

// GetSession fetches a session by id. Returns ErrSessionNotFound when absent.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns sessions, optionally filtered by project, newest first.
func (s *SessionStore) ListSessions(ctx context.Context, projectID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC, id`
	args := []any{}
	if projectID != "" {
		query = `SELECT ` + sessionColumns + ` FROM sessions WHERE project_id = ? ORDER BY created_at DESC, id`
		args = append(args, projectID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ApplyPatch applies a lifecycle patch to a session row.
func (s *SessionStore) ApplyPatch(ctx context.Context, id string, patch *models.SessionPatch) error {
	query := `UPDATE sessions SET status = ?, updated_at = ?`
	args := []any{string(patch.Status), patch.UpdatedAt.Unix()}

	if patch.StartedAt != nil {
		query += `, started_at = ?`
		args = append(args, patch.StartedAt.Unix())
	}
	if patch.EndedAt != nil {
		query += `, ended_at = ?`
		args = append(args, patch.EndedAt.Unix())
	}
	if patch.CompletedAt != nil {
		query += `, completed_at = ?`
		args = append(args, patch.CompletedAt.Unix())
	}
	if patch.Error != nil {
		query += `, error = ?`
		args = append(args, *patch.Error)
	}

	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply patch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply patch rows: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}
