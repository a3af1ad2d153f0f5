// Package session turns status transition requests into validated,
// timestamped persistence patches and manages the persisted session
// lifecycle.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/forgeline-io/forgeline/internal/models"
)

// DefaultCancelMessage is stored when a session is cancelled without an
// explicit reason.
const DefaultCancelMessage = "Cancelled by user"

// Store is the slice of the session store the lifecycle manager needs.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ApplyPatch(ctx context.Context, id string, patch *models.SessionPatch) error
}

// ConflictError reports a transition that violates the status state machine.
// It indicates a caller or race bug upstream and is surfaced, never coerced.
type ConflictError struct {
	Cause *models.InvalidTransitionError
}

func (e *ConflictError) Error() string { return e.Cause.Error() }
func (e *ConflictError) Unwrap() error { return e.Cause }

// BuildTransitionPatch validates snapshot.Status -> to and produces the
// persistence patch for the transition. Timestamps already present on the
// snapshot are never overwritten, so duplicate transition requests are
// idempotent with respect to stamping.
func BuildTransitionPatch(snapshot *models.Session, to models.SessionStatus, at time.Time, errMsg string) (*models.SessionPatch, error) {
	if _, err := models.AssertValidTransition(snapshot.ID, snapshot.Status, to); err != nil {
		return nil, &ConflictError{Cause: err.(*models.InvalidTransitionError)}
	}

	patch := &models.SessionPatch{Status: to, UpdatedAt: at}

	if to == models.SessionStatusRunning && snapshot.StartedAt == nil {
		t := at
		patch.StartedAt = &t
	}

	if models.IsTerminalStatus(to) {
		if snapshot.EndedAt == nil {
			t := at
			patch.EndedAt = &t
		}
		if snapshot.CompletedAt == nil {
			t := at
			patch.CompletedAt = &t
		}
		// Empty on success into completed, the supplied message otherwise.
		msg := errMsg
		if to == models.SessionStatusCompleted {
			msg = ""
		}
		patch.Error = &msg
	}

	return patch, nil
}

// Manager loads session snapshots, builds transition patches, and persists
// them.
type Manager struct {
	store Store
}

// NewManager creates a lifecycle manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// TransitionStatus loads the current snapshot, computes the patch for the
// requested transition, persists it, and returns it. A zero at defaults to
// the current time.
func (m *Manager) TransitionStatus(ctx context.Context, sessionID string, to models.SessionStatus, at time.Time, errMsg string) (*models.SessionPatch, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	snapshot, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	patch, err := BuildTransitionPatch(snapshot, to, at, errMsg)
	if err != nil {
		return nil, err
	}

	if err := m.store.ApplyPatch(ctx, sessionID, patch); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	return patch, nil
}

// MarkRunning transitions the session into running.
func (m *Manager) MarkRunning(ctx context.Context, sessionID string) (*models.SessionPatch, error) {
	return m.TransitionStatus(ctx, sessionID, models.SessionStatusRunning, time.Time{}, "")
}

// MarkFinished transitions the session into completed or failed based on the
// result of its work.
func (m *Manager) MarkFinished(ctx context.Context, sessionID string, success bool, errMsg string) (*models.SessionPatch, error) {
	to := models.SessionStatusCompleted
	if !success {
		to = models.SessionStatusFailed
	}
	return m.TransitionStatus(ctx, sessionID, to, time.Time{}, errMsg)
}

// MarkCancelled transitions the session into cancelled. An empty reason
// stores DefaultCancelMessage.
func (m *Manager) MarkCancelled(ctx context.Context, sessionID, reason string) (*models.SessionPatch, error) {
	if reason == "" {
		reason = DefaultCancelMessage
	}
	return m.TransitionStatus(ctx, sessionID, models.SessionStatusCancelled, time.Time{}, reason)
}
