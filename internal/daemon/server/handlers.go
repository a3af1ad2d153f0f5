package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forgeline-io/forgeline/internal/buildinfo"
	"github.com/forgeline-io/forgeline/internal/config"
	"github.com/forgeline-io/forgeline/internal/daemon/runner"
	"github.com/forgeline-io/forgeline/internal/daemon/scheduler"
	"github.com/forgeline-io/forgeline/internal/graph"
	"github.com/forgeline-io/forgeline/internal/models"
	"github.com/forgeline-io/forgeline/internal/sessionlog"
	"github.com/forgeline-io/forgeline/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": buildinfo.Version,
		"pid":     os.Getpid(),
	})
}

type startRunRequest struct {
	TicketIDs []string `json:"ticket_ids"`
	Mode      string   `json:"mode"`
	Provider  string   `json:"provider"`
	WorkDir   string   `json:"work_dir"`
}

// handleStartRun executes a dependency-ordered batch over the given tickets.
// The response is written once every ticket has settled; disconnecting the
// client aborts the remaining layers.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req startRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if len(req.TicketIDs) == 0 {
		writeError(w, http.StatusBadRequest, "ticket_ids is required")
		return
	}
	settings := s.settings()
	if req.Provider == "" {
		req.Provider = settings.DefaultProvider
	}

	sched := scheduler.New(s.tickets, settings.Scheduler.MaxParallelPerLayer)
	batch := runner.BatchRequest{
		ProjectID: projectID,
		TicketIDs: req.TicketIDs,
		Mode:      req.Mode,
		Provider:  req.Provider,
		WorkDir:   req.WorkDir,
	}

	runID := uuid.New().String()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.activities.Register(&models.Activity{
		ID:        runID,
		ProjectID: projectID,
		Type:      "run",
		Label:     "Batch run",
		Provider:  req.Provider,
		StartedAt: time.Now().UTC(),
		Cancel:    cancel,
	})
	defer s.activities.Unregister(runID)

	result, err := s.runner.RunBatch(ctx, s.tickets, sched, batch, nil)
	if err != nil {
		var cycleErr *graph.ErrCycle
		if errors.As(err, &cycleErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": cycleErr.Error(),
				"cycle": cycleErr.Path,
			})
			return
		}
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type startSessionRequest struct {
	ProjectID string `json:"project_id"`
	EpicID    string `json:"epic_id"`
	StoryID   string `json:"story_id"`
	Mode      string `json:"mode"`
	Provider  string `json:"provider"`
	Prompt    string `json:"prompt"`
	WorkDir   string `json:"work_dir"`
}

// handleStartSession starts one guarded session. A busy scope yields 409
// with the conflicting session's location.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.ProjectID == "" || req.EpicID == "" {
		writeError(w, http.StatusBadRequest, "project_id and epic_id are required")
		return
	}
	if req.Provider == "" {
		req.Provider = s.settings().DefaultProvider
	}

	sess, conflict, _, err := s.runner.Start(r.Context(), runner.StartRequest{
		ProjectID: req.ProjectID,
		EpicID:    req.EpicID,
		StoryID:   req.StoryID,
		Mode:      req.Mode,
		Provider:  req.Provider,
		Prompt:    req.Prompt,
		WorkDir:   req.WorkDir,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	if conflict != nil {
		writeJSON(w, http.StatusConflict, conflict)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	sessions, err := s.sessions.ListSessions(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session %s not found", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var req cancelSessionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
	}

	cancelled, err := s.runner.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	if !cancelled {
		writeError(w, http.StatusConflict, "session %s is not running", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.SessionStatusCancelled)})
}

// handleSessionLog returns the session's log entries in seq order.
func (s *Server) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, err := s.sessions.GetSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session %s not found", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	entries, err := sessionlog.ReadLogEntries(config.SessionLogFile(s.logsDir, id))
	if err != nil {
		writeError(w, http.StatusNotFound, "no log for session %s", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	writeJSON(w, http.StatusOK, map[string]any{
		"activities": s.activities.ListByProject(projectID),
	})
}

type createTicketRequest struct {
	ID     string `json:"id"`
	EpicID string `json:"epic_id"`
	Title  string `json:"title"`
	Kind   string `json:"kind"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req createTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	kind := models.TicketKind(req.Kind)
	if kind == "" {
		kind = models.TicketKindStory
	}
	if kind != models.TicketKindEpic && kind != models.TicketKindStory {
		writeError(w, http.StatusBadRequest, "kind must be epic or story")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	ticket := &models.Ticket{
		ID:        req.ID,
		ProjectID: projectID,
		EpicID:    req.EpicID,
		Title:     req.Title,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.tickets.CreateTicket(r.Context(), ticket); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	tickets, err := s.tickets.ListTickets(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

type addDependencyRequest struct {
	DependsOn string `json:"depends_on"`
}

// handleAddDependency rejects edges that would close a cycle; the offending
// path comes back in the response.
func (s *Server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	var req addDependencyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.DependsOn == "" {
		writeError(w, http.StatusBadRequest, "depends_on is required")
		return
	}

	err := s.tickets.AddDependency(r.Context(), ticketID, req.DependsOn)
	if err != nil {
		var cycleErr *graph.ErrCycle
		if errors.As(err, &cycleErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": cycleErr.Error(),
				"cycle": cycleErr.Path,
			})
			return
		}
		var crossErr *graph.ErrCrossProject
		if errors.As(err, &crossErr) {
			writeError(w, http.StatusUnprocessableEntity, "%v", err)
			return
		}
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusCreated, models.DependencyEdge{
		TicketID:          ticketID,
		DependsOnTicketID: req.DependsOn,
	})
}

func (s *Server) handleListDependencies(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	edges, err := s.tickets.ListDependencies(r.Context(), ticketID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dependencies": edges})
}

func (s *Server) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	dependsOnID := chi.URLParam(r, "dependsOnID")

	if err := s.tickets.RemoveDependency(r.Context(), ticketID, dependsOnID); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
