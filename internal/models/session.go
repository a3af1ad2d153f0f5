// Package models contains shared data structures used across the application.
package models

import (
	"fmt"
	"time"
)

// SessionStatus represents the lifecycle status of an agent session.
type SessionStatus string

const (
	SessionStatusQueued    SessionStatus = "queued"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// legacyStatusPending is the historical spelling of "queued" that may still
// exist in stored session rows. It is normalized on read, never written back.
const legacyStatusPending = "pending"

// sessionTransitions is the table of legal status transitions.
// Terminal statuses have no outgoing transitions, including to themselves.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusQueued:    {SessionStatusRunning, SessionStatusCancelled, SessionStatusFailed},
	SessionStatusRunning:   {SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled},
	SessionStatusCompleted: {},
	SessionStatusFailed:    {},
	SessionStatusCancelled: {},
}

// NormalizeStatus maps legacy stored status values onto the current set.
func NormalizeStatus(s string) SessionStatus {
	if s == legacyStatusPending {
		return SessionStatusQueued
	}
	return SessionStatus(s)
}

// IsValidTransition reports whether from -> to is a legal status transition.
func IsValidTransition(from, to SessionStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether the status has no outgoing transitions.
func IsTerminalStatus(s SessionStatus) bool {
	next, ok := sessionTransitions[s]
	return ok && len(next) == 0
}

// InvalidTransitionError reports an illegal session status transition.
type InvalidTransitionError struct {
	SessionID string
	From      SessionStatus
	To        SessionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("Invalid session status transition for %s: %s -> %s", e.SessionID, e.From, e.To)
}

// AssertValidTransition returns to if from -> to is legal, otherwise an
// *InvalidTransitionError naming the session and both statuses.
func AssertValidTransition(sessionID string, from, to SessionStatus) (SessionStatus, error) {
	if !IsValidTransition(from, to) {
		return "", &InvalidTransitionError{SessionID: sessionID, From: from, To: to}
	}
	return to, nil
}

// Session represents a persisted agent session. A session occupies a
// contention scope: either a whole epic, or one story within an epic.
type Session struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	EpicID      string        `json:"epic_id"`
	StoryID     string        `json:"story_id,omitempty"` // empty for epic-scoped sessions
	Status      SessionStatus `json:"status"`
	Mode        string        `json:"mode"`
	Provider    string        `json:"provider"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewSession creates a queued session for the given scope.
func NewSession(id, projectID, epicID, storyID, mode, provider string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		ProjectID: projectID,
		EpicID:    epicID,
		StoryID:   storyID,
		Status:    SessionStatusQueued,
		Mode:      mode,
		Provider:  provider,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Scope returns the contention scope key for the session.
func (s *Session) Scope() Scope {
	return Scope{ProjectID: s.ProjectID, EpicID: s.EpicID, StoryID: s.StoryID}
}

// Scope identifies the contention scope under which at most one session with
// a non-terminal status may exist. StoryID is empty for epic-wide scopes.
type Scope struct {
	ProjectID string `json:"project_id"`
	EpicID    string `json:"epic_id"`
	StoryID   string `json:"story_id,omitempty"`
}

// String renders the scope as a stable key, usable in logs.
func (s Scope) String() string {
	if s.StoryID == "" {
		return s.ProjectID + "/" + s.EpicID
	}
	return s.ProjectID + "/" + s.EpicID + "/" + s.StoryID
}
