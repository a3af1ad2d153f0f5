package models

import "time"

// SessionPatch is a validated, timestamped field update produced by the
// lifecycle manager and applied to the session store. Nil pointer fields are
// left untouched.
type SessionPatch struct {
	Status      SessionStatus `json:"status"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Error       *string       `json:"error,omitempty"` // pointer to empty string clears the field
	UpdatedAt   time.Time     `json:"updated_at"`
}
