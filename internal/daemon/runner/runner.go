// Package runner ties the persisted session lifecycle to in-memory process
// tracking: it starts guarded sessions, reconciles their outcomes, and keeps
// the per-session audit log.
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeline-io/forgeline/internal/config"
	"github.com/forgeline-io/forgeline/internal/daemon/process"
	"github.com/forgeline-io/forgeline/internal/daemon/session"
	"github.com/forgeline-io/forgeline/internal/models"
	"github.com/forgeline-io/forgeline/internal/sessionlog"
	"github.com/forgeline-io/forgeline/internal/store"
)

// ProviderResolver returns the spawn capability for a provider name.
type ProviderResolver func(name string) (process.Provider, error)

// Runner starts and cancels agent sessions.
type Runner struct {
	sessions  *store.SessionStore
	lifecycle *session.Manager
	procs     *process.Manager
	logs      *sessionlog.Registry
	logsDir   string
	resolve   ProviderResolver

	mu      sync.Mutex
	settled map[string]chan error // one-shot completion per session
}

// New creates a runner.
func New(sessions *store.SessionStore, lifecycle *session.Manager, procs *process.Manager, logs *sessionlog.Registry, logsDir string, resolve ProviderResolver) *Runner {
	return &Runner{
		sessions:  sessions,
		lifecycle: lifecycle,
		procs:     procs,
		logs:      logs,
		logsDir:   logsDir,
		resolve:   resolve,
		settled:   make(map[string]chan error),
	}
}

// StartRequest describes a session to start.
type StartRequest struct {
	ProjectID string
	EpicID    string
	StoryID   string // empty for epic-wide sessions
	Mode      string
	Provider  string
	Prompt    string
	WorkDir   string
}

// Start inserts a guarded session and spawns its work. On a scope conflict
// it returns the conflict payload and no session. The returned channel
// receives the session's final error (nil on success) exactly once.
func (r *Runner) Start(ctx context.Context, req StartRequest) (*models.Session, *session.ConflictPayload, <-chan error, error) {
	sess := models.NewSession(uuid.New().String(), req.ProjectID, req.EpicID, req.StoryID, req.Mode, req.Provider)

	res, err := r.sessions.InsertRunningSessionWithGuard(ctx, sess)
	if err != nil {
		return nil, nil, nil, err
	}
	if !res.Inserted {
		payload := session.AlreadyRunningPayload(sess.Scope(), res.Conflicting)
		return nil, &payload, nil, nil
	}

	provider, err := r.resolve(req.Provider)
	if err != nil {
		r.failBeforeSpawn(ctx, sess.ID, err)
		return nil, nil, nil, err
	}

	if _, err := r.lifecycle.MarkRunning(ctx, sess.ID); err != nil {
		r.failBeforeSpawn(ctx, sess.ID, err)
		return nil, nil, nil, err
	}
	startedAt := time.Now().UTC()

	// The log writer is registered only once the session is committed to
	// running; every exit path below ends the log and releases the entry.
	writer := r.logs.Writer(sess.ID, config.SessionLogFile(r.logsDir, sess.ID))
	writer.WriteHeader(map[string]any{
		"project_id": sess.ProjectID,
		"epic_id":    sess.EpicID,
		"story_id":   sess.StoryID,
		"mode":       sess.Mode,
		"provider":   sess.Provider,
	})

	done := make(chan error, 1)
	r.mu.Lock()
	r.settled[sess.ID] = done
	r.mu.Unlock()

	params := process.StartParams{
		SessionID: sess.ID,
		ProjectID: sess.ProjectID,
		Prompt:    req.Prompt,
		WorkDir:   req.WorkDir,
	}
	onSettled := func(status models.SessionStatus, result, errMsg string) {
		success := status == models.SessionStatusCompleted
		if _, err := r.lifecycle.MarkFinished(context.Background(), sess.ID, success, errMsg); err != nil {
			log.Printf("[runner] persist outcome for %s: %v", sess.ID, err)
		}
		writer.End(sessionlog.EndInfo{
			Status:   string(status),
			Error:    errMsg,
			Duration: time.Since(startedAt),
		})
		r.logs.Release(sess.ID)
		_ = r.procs.Remove(sess.ID)
		if success {
			r.deliver(sess.ID, nil)
		} else {
			r.deliver(sess.ID, fmt.Errorf("%s", errMsg))
		}
	}

	if err := r.procs.Start(ctx, sess.ID, params, provider, onSettled); err != nil {
		// Spawn failed synchronously; the in-memory tracker already shows
		// failed, persist the same outcome here.
		if _, perr := r.lifecycle.MarkFinished(ctx, sess.ID, false, err.Error()); perr != nil {
			log.Printf("[runner] persist spawn failure for %s: %v", sess.ID, perr)
		}
		writer.End(sessionlog.EndInfo{Status: string(models.SessionStatusFailed), Error: err.Error(), Duration: time.Since(startedAt)})
		r.logs.Release(sess.ID)
		_ = r.procs.Remove(sess.ID)
		r.deliver(sess.ID, err)
		return sess, nil, done, nil
	}

	return sess, nil, done, nil
}

// Cancel stops a running session and persists the cancellation. Returns
// false when the session is unknown to the process tracker or already
// terminal.
func (r *Runner) Cancel(ctx context.Context, sessionID, reason string) (bool, error) {
	if !r.procs.Cancel(sessionID) {
		return false, nil
	}
	if reason == "" {
		reason = session.DefaultCancelMessage
	}
	if _, err := r.lifecycle.MarkCancelled(ctx, sessionID, reason); err != nil {
		return true, err
	}

	writer := r.logs.Writer(sessionID, config.SessionLogFile(r.logsDir, sessionID))
	writer.End(sessionlog.EndInfo{Status: string(models.SessionStatusCancelled), Error: reason})
	r.logs.Release(sessionID)
	_ = r.procs.Remove(sessionID)

	r.deliver(sessionID, fmt.Errorf("%s", reason))
	return true, nil
}

// failBeforeSpawn marks a freshly inserted session failed when setup breaks
// before the provider ever runs.
func (r *Runner) failBeforeSpawn(ctx context.Context, sessionID string, cause error) {
	if _, err := r.lifecycle.MarkFinished(ctx, sessionID, false, cause.Error()); err != nil {
		log.Printf("[runner] persist setup failure for %s: %v", sessionID, err)
	}
}

// deliver sends the session's final error exactly once.
func (r *Runner) deliver(sessionID string, err error) {
	r.mu.Lock()
	done, ok := r.settled[sessionID]
	delete(r.settled, sessionID)
	r.mu.Unlock()

	if ok {
		done <- err
		close(done)
	}
}
