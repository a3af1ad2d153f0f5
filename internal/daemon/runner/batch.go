package runner

import (
	"context"
	"fmt"

	"github.com/forgeline-io/forgeline/internal/daemon/scheduler"
	"github.com/forgeline-io/forgeline/internal/models"
	"github.com/forgeline-io/forgeline/internal/store"
)

// BatchRequest describes a dependency-ordered run over a set of tickets.
type BatchRequest struct {
	ProjectID string
	TicketIDs []string
	Mode      string
	Provider  string
	WorkDir   string
}

// BatchResult reports the final state of every ticket in a batch.
type BatchResult struct {
	ProjectID string                           `json:"project_id"`
	Layers    [][]string                       `json:"layers"`
	Tickets   map[string]scheduler.TicketState `json:"tickets"`
	Sessions  map[string]string                `json:"sessions"` // ticket ID -> session ID
}

// RunBatch plans the given tickets into dependency layers and executes them,
// one guarded session per ticket. Ticket failures are reported in the result,
// not returned; the error covers planning problems only.
func (r *Runner) RunBatch(ctx context.Context, tickets *store.TicketStore, sched *scheduler.Scheduler, req BatchRequest, onChange scheduler.StatusChangeFunc) (*BatchResult, error) {
	plan, err := sched.BuildExecutionPlan(ctx, req.ProjectID, req.TicketIDs)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Ticket, len(req.TicketIDs))
	for _, id := range req.TicketIDs {
		ticket, err := tickets.GetTicket(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load ticket %s: %w", id, err)
		}
		if ticket == nil {
			return nil, fmt.Errorf("ticket %s not found", id)
		}
		byID[id] = ticket
	}

	result := &BatchResult{
		ProjectID: req.ProjectID,
		Layers:    plan.Layers,
		Sessions:  make(map[string]string),
	}

	launch := func(ctx context.Context, ticketID string) error {
		sessionID, err := r.runTicket(ctx, byID[ticketID], req)
		if sessionID != "" {
			r.mu.Lock()
			result.Sessions[ticketID] = sessionID
			r.mu.Unlock()
		}
		return err
	}

	result.Tickets = sched.ExecuteDagPlan(ctx, plan, launch, onChange)
	return result, nil
}

// runTicket starts one session for a ticket and blocks until it settles.
func (r *Runner) runTicket(ctx context.Context, ticket *models.Ticket, req BatchRequest) (string, error) {
	start := StartRequest{
		ProjectID: req.ProjectID,
		EpicID:    ticket.EpicID,
		Mode:      req.Mode,
		Provider:  req.Provider,
		Prompt:    ticket.Title,
		WorkDir:   req.WorkDir,
	}
	if ticket.Kind == models.TicketKindStory {
		start.StoryID = ticket.ID
	}
	if ticket.Kind == models.TicketKindEpic {
		start.EpicID = ticket.ID
	}

	sess, conflict, done, err := r.Start(ctx, start)
	if err != nil {
		return "", err
	}
	if conflict != nil {
		return "", fmt.Errorf("scope busy: session %s already active", conflict.Data.ActiveSessionID)
	}

	select {
	case err := <-done:
		return sess.ID, err
	case <-ctx.Done():
		if _, cerr := r.Cancel(context.Background(), sess.ID, "Run aborted"); cerr != nil {
			return sess.ID, cerr
		}
		return sess.ID, ctx.Err()
	}
}
