package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/forgeline-io/forgeline/internal/graph"
	"github.com/forgeline-io/forgeline/internal/models"
)

// TicketStore handles ticket and dependency-edge CRUD on SQLite.
type TicketStore struct {
	db *DB
}

// NewTicketStore creates a new ticket store.
func NewTicketStore(db *DB) *TicketStore {
	return &TicketStore{db: db}
}

// CreateTicket inserts a ticket.
func (s *TicketStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, project_id, epic_id, title, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.ProjectID, t.EpicID, t.Title, t.Kind, t.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// GetTicket fetches a ticket by id. Returns nil when absent.
func (s *TicketStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var t models.Ticket
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, epic_id, title, kind, created_at
		FROM tickets WHERE id = ?
	`, id).Scan(&t.ID, &t.ProjectID, &t.EpicID, &t.Title, &t.Kind, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &t, nil
}

// ListTickets returns all tickets for a project.
func (s *TicketStore) ListTickets(ctx context.Context, projectID string) ([]*models.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, epic_id, title, kind, created_at
		FROM tickets WHERE project_id = ? ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		var t models.Ticket
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.EpicID, &t.Title, &t.Kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		tickets = append(tickets, &t)
	}
	return tickets, rows.Err()
}

// AddDependency validates and inserts a dependency edge. It rejects
// self-dependencies and cross-project edges (*graph.ErrCrossProject), and
// edges that would close a cycle (*graph.ErrCycle). Validation runs before
// any write.
func (s *TicketStore) AddDependency(ctx context.Context, ticketID, dependsOnTicketID string) error {
	if ticketID == dependsOnTicketID {
		return &graph.ErrCycle{Path: []string{ticketID, ticketID}}
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket == nil {
		return fmt.Errorf("ticket not found: %s", ticketID)
	}
	dep, err := s.GetTicket(ctx, dependsOnTicketID)
	if err != nil {
		return err
	}
	if dep == nil {
		return fmt.Errorf("ticket not found: %s", dependsOnTicketID)
	}
	if ticket.ProjectID != dep.ProjectID {
		return &graph.ErrCrossProject{TicketID: ticketID, DependsOnTicketID: dependsOnTicketID}
	}

	// Build the would-be edge set for the project and check for cycles.
	adjacency, err := s.projectAdjacency(ctx, ticket.ProjectID)
	if err != nil {
		return err
	}
	adjacency[ticketID] = append(adjacency[ticketID], dependsOnTicketID)
	if cycle := graph.DetectCycle(adjacency); cycle != nil {
		return &graph.ErrCycle{Path: cycle}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ticket_dependencies (ticket_id, depends_on_ticket_id, project_id)
		VALUES (?, ?, ?)
	`, ticketID, dependsOnTicketID, ticket.ProjectID)
	if err != nil {
		return fmt.Errorf("insert dependency: %w", err)
	}
	return nil
}

// RemoveDependency deletes a dependency edge if it exists.
func (s *TicketStore) RemoveDependency(ctx context.Context, ticketID, dependsOnTicketID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM ticket_dependencies WHERE ticket_id = ? AND depends_on_ticket_id = ?
	`, ticketID, dependsOnTicketID)
	if err != nil {
		return fmt.Errorf("delete dependency: %w", err)
	}
	return nil
}

// ListDependencies returns every edge leaving the given ticket.
func (s *TicketStore) ListDependencies(ctx context.Context, ticketID string) ([]models.DependencyEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket_id, depends_on_ticket_id, project_id
		FROM ticket_dependencies WHERE ticket_id = ?
		ORDER BY depends_on_ticket_id
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	var edges []models.DependencyEdge
	for rows.Next() {
		var e models.DependencyEdge
		if err := rows.Scan(&e.TicketID, &e.DependsOnTicketID, &e.ProjectID); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesFor returns the dependency edges restricted to the given ticket subset,
// shaped as a map from ticket id to the ids it depends on. Only edges with
// both endpoints in the subset are included.
func (s *TicketStore) EdgesFor(ctx context.Context, projectID string, ticketIDs []string) (map[string][]string, error) {
	if len(ticketIDs) == 0 {
		return map[string][]string{}, nil
	}

	placeholders := strings.Repeat("?,", len(ticketIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ticketIDs)+1)
	args = append(args, projectID)
	for _, id := range ticketIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket_id, depends_on_ticket_id
		FROM ticket_dependencies
		WHERE project_id = ? AND ticket_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	inSet := make(map[string]bool, len(ticketIDs))
	for _, id := range ticketIDs {
		inSet[id] = true
	}

	deps := make(map[string][]string)
	for rows.Next() {
		var ticketID, dependsOn string
		if err := rows.Scan(&ticketID, &dependsOn); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if inSet[dependsOn] {
			deps[ticketID] = append(deps[ticketID], dependsOn)
		}
	}
	return deps, rows.Err()
}

// projectAdjacency loads the full edge set for a project as an adjacency map.
func (s *TicketStore) projectAdjacency(ctx context.Context, projectID string) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticket_id, depends_on_ticket_id
		FROM ticket_dependencies WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query project edges: %w", err)
	}
	defer rows.Close()

	adjacency := make(map[string][]string)
	for rows.Next() {
		var ticketID, dependsOn string
		if err := rows.Scan(&ticketID, &dependsOn); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		adjacency[ticketID] = append(adjacency[ticketID], dependsOn)
	}
	return adjacency, rows.Err()
}
