package models

import "time"

// Activity represents an ephemeral, non-persisted unit of tracked work, such
// as an interactive chat stream. Activities live only in process memory and
// never survive a daemon restart.
type Activity struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Type      string    `json:"type"`
	Label     string    `json:"label"`
	Provider  string    `json:"provider"`
	StartedAt time.Time `json:"started_at"`

	// Cancel stops the underlying work, if the activity supports it.
	Cancel func() `json:"-"`
}
