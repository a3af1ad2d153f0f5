package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forgeline-io/forgeline/internal/models"
	"github.com/forgeline-io/forgeline/internal/store"
)

// fakeStore is an in-memory Store for lifecycle tests.
type fakeStore struct {
	sessions map[string]*models.Session
}

func newFakeStore(sessions ...*models.Session) *fakeStore {
	fs := &fakeStore{sessions: make(map[string]*models.Session)}
	for _, s := range sessions {
		fs.sessions[s.ID] = s
	}
	return fs
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStore) ApplyPatch(_ context.Context, id string, patch *models.SessionPatch) error {
	s, ok := f.sessions[id]
	if !ok {
		return store.ErrSessionNotFound
	}
	s.Status = patch.Status
	s.UpdatedAt = patch.UpdatedAt
	if patch.StartedAt != nil {
		s.StartedAt = patch.StartedAt
	}
	if patch.EndedAt != nil {
		s.EndedAt = patch.EndedAt
	}
	if patch.CompletedAt != nil {
		s.CompletedAt = patch.CompletedAt
	}
	if patch.Error != nil {
		s.Error = *patch.Error
	}
	return nil
}

func TestBuildTransitionPatchStampsStartedAtOnce(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	snapshot := models.NewSession("s1", "p1", "e1", "", "build", "claude-code")
	patch, err := BuildTransitionPatch(snapshot, models.SessionStatusRunning, at, "")
	if err != nil {
		t.Fatalf("build patch: %v", err)
	}
	if patch.StartedAt == nil || !patch.StartedAt.Equal(at) {
		t.Errorf("StartedAt = %v, want %v", patch.StartedAt, at)
	}

	// A snapshot that already has StartedAt keeps it.
	earlier := at.Add(-time.Hour)
	snapshot.Status = models.SessionStatusQueued
	snapshot.StartedAt = &earlier
	patch, err = BuildTransitionPatch(snapshot, models.SessionStatusRunning, at, "")
	if err != nil {
		t.Fatalf("build patch: %v", err)
	}
	if patch.StartedAt != nil {
		t.Errorf("StartedAt restamped to %v, want untouched", patch.StartedAt)
	}
}

func TestBuildTransitionPatchTerminalStamps(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		to        models.SessionStatus
		errMsg    string
		wantError string
	}{
		{"completed clears error", models.SessionStatusCompleted, "ignored", ""},
		{"failed keeps message", models.SessionStatusFailed, "boom", "boom"},
		{"cancelled keeps message", models.SessionStatusCancelled, "Cancelled by user", "Cancelled by user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := models.NewSession("s1", "p1", "e1", "", "build", "claude-code")
			snapshot.Status = models.SessionStatusRunning

			patch, err := BuildTransitionPatch(snapshot, tt.to, at, tt.errMsg)
			if err != nil {
				t.Fatalf("build patch: %v", err)
			}
			if patch.EndedAt == nil || patch.CompletedAt == nil {
				t.Fatal("terminal patch should stamp EndedAt and CompletedAt")
			}
			if patch.Error == nil || *patch.Error != tt.wantError {
				t.Errorf("Error = %v, want %q", patch.Error, tt.wantError)
			}
		})
	}
}

func TestBuildTransitionPatchNeverRestampsTerminal(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	earlier := at.Add(-time.Hour)

	snapshot := models.NewSession("s1", "p1", "e1", "", "build", "claude-code")
	snapshot.Status = models.SessionStatusRunning
	snapshot.EndedAt = &earlier
	snapshot.CompletedAt = &earlier

	patch, err := BuildTransitionPatch(snapshot, models.SessionStatusFailed, at, "boom")
	if err != nil {
		t.Fatalf("build patch: %v", err)
	}
	if patch.EndedAt != nil || patch.CompletedAt != nil {
		t.Error("existing terminal timestamps must not be overwritten")
	}
}

func TestBuildTransitionPatchConflict(t *testing.T) {
	snapshot := models.NewSession("s1", "p1", "e1", "", "build", "claude-code")
	snapshot.Status = models.SessionStatusCompleted

	_, err := BuildTransitionPatch(snapshot, models.SessionStatusRunning, time.Now(), "")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want ConflictError", err)
	}
	var invalid *models.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Error("ConflictError should unwrap to InvalidTransitionError")
	}
}

func TestTransitionStatusPersists(t *testing.T) {
	ctx := context.Background()
	sess := models.NewSession("s1", "p1", "e1", "", "build", "claude-code")
	fs := newFakeStore(sess)
	mgr := NewManager(fs)

	if _, err := mgr.MarkRunning(ctx, "s1"); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if fs.sessions["s1"].Status != models.SessionStatusRunning {
		t.Errorf("status = %s, want running", fs.sessions["s1"].Status)
	}
	if fs.sessions["s1"].StartedAt == nil {
		t.Error("StartedAt not stamped")
	}

	if _, err := mgr.MarkFinished(ctx, "s1", false, "exit status 1"); err != nil {
		t.Fatalf("mark finished: %v", err)
	}
	got := fs.sessions["s1"]
	if got.Status != models.SessionStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error != "exit status 1" {
		t.Errorf("error = %q, want exit status 1", got.Error)
	}
	if got.EndedAt == nil || got.CompletedAt == nil {
		t.Error("terminal timestamps not stamped")
	}
}

func TestTransitionStatusNotFound(t *testing.T) {
	mgr := NewManager(newFakeStore())
	_, err := mgr.MarkRunning(context.Background(), "missing")
	if !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestMarkCancelledDefaultMessage(t *testing.T) {
	ctx := context.Background()
	sess := models.NewSession("s1", "p1", "e1", "", "build", "claude-code")
	sess.Status = models.SessionStatusRunning
	fs := newFakeStore(sess)
	mgr := NewManager(fs)

	if _, err := mgr.MarkCancelled(ctx, "s1", ""); err != nil {
		t.Fatalf("mark cancelled: %v", err)
	}
	if fs.sessions["s1"].Error != DefaultCancelMessage {
		t.Errorf("error = %q, want %q", fs.sessions["s1"].Error, DefaultCancelMessage)
	}
}

func TestAlreadyRunningPayload(t *testing.T) {
	conflicting := models.NewSession("s9", "p1", "e1", "", "build", "claude-code")
	payload := AlreadyRunningPayload(models.Scope{ProjectID: "p1", EpicID: "e1"}, conflicting)

	if payload.Code != CodeAgentAlreadyRunning {
		t.Errorf("code = %s", payload.Code)
	}
	if payload.Data.ActiveSessionID != "s9" {
		t.Errorf("activeSessionId = %s", payload.Data.ActiveSessionID)
	}
	if payload.Data.SessionURL != "/projects/p1/sessions/s9" {
		t.Errorf("sessionUrl = %s", payload.Data.SessionURL)
	}
}
