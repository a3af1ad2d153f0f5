package models

import "time"

// TicketKind distinguishes epics from stories.
type TicketKind string

const (
	TicketKindEpic  TicketKind = "epic"
	TicketKindStory TicketKind = "story"
)

// Ticket represents a unit of planned work. Tickets belong to exactly one
// project and may depend on other tickets in the same project.
type Ticket struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	EpicID    string     `json:"epic_id,omitempty"` // parent epic for stories
	Title     string     `json:"title"`
	Kind      TicketKind `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
}

// DependencyEdge records that TicketID cannot start until DependsOnTicketID
// has finished. Both endpoints belong to ProjectID; the edge set forms a DAG.
type DependencyEdge struct {
	TicketID          string `json:"ticket_id"`
	DependsOnTicketID string `json:"depends_on_ticket_id"`
	ProjectID         string `json:"project_id"`
}
