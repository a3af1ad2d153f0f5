// Package process tracks externally spawned agent work in memory and
// reconciles asynchronous completion against cancellation.
package process

import (
	"context"
	"fmt"
	"sync"

	"github.com/forgeline-io/forgeline/internal/models"
)

// Outcome is the settled result of a spawned work unit.
type Outcome struct {
	Result string
	Err    error
}

// Handle represents a spawned work unit: a completion channel plus a kill
// callback. Providers send exactly one Outcome and close the channel.
type Handle struct {
	Done <-chan Outcome
	Kill func()
}

// Provider spawns provider-specific agent work. The manager treats the
// actual invocation as opaque.
type Provider interface {
	Spawn(ctx context.Context, params StartParams) (*Handle, error)
}

// StartParams describes the work a provider should spawn.
type StartParams struct {
	SessionID string
	ProjectID string
	Prompt    string
	WorkDir   string
}

// tracked is the in-memory record for one session.
type tracked struct {
	status models.SessionStatus
	result string
	errMsg string
	kill   func()
}

// Snapshot is a copy of a session's in-memory state.
type Snapshot struct {
	Status models.SessionStatus
	Result string
	Error  string
}

// Manager is an in-memory tracker for spawned sessions. Construct one per
// daemon and inject it wherever sessions are started; entries vanish on
// restart. Sessions are fully independent of one another.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*tracked
}

// NewManager creates an empty process manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*tracked)}
}

// Start registers the session as running, spawns it through the provider,
// and attaches completion continuations. onSettled, if non-nil, is invoked
// once when a continuation lands a terminal status (it is not invoked for
// Cancel, whose caller already knows the outcome). A spawn error marks the
// session failed immediately.
func (m *Manager) Start(ctx context.Context, id string, params StartParams, provider Provider, onSettled func(status models.SessionStatus, result, errMsg string)) error {
	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok && !models.IsTerminalStatus(existing.status) {
		m.mu.Unlock()
		return fmt.Errorf("session %s is already running", id)
	}
	entry := &tracked{status: models.SessionStatusRunning}
	m.sessions[id] = entry
	m.mu.Unlock()

	handle, err := provider.Spawn(ctx, params)
	if err != nil {
		// Mark failed in memory; the caller handles persistence for
		// synchronous spawn errors, so onSettled is not invoked.
		m.settle(id, models.SessionStatusFailed, "", err.Error(), nil)
		return err
	}

	m.mu.Lock()
	// Cancel may have won the race while the provider was spawning.
	if entry.status == models.SessionStatusRunning {
		entry.kill = handle.Kill
	} else if handle.Kill != nil {
		defer handle.Kill()
	}
	m.mu.Unlock()

	go func() {
		outcome, ok := <-handle.Done
		if !ok {
			outcome = Outcome{Err: fmt.Errorf("provider closed without an outcome")}
		}
		if outcome.Err != nil {
			m.settle(id, models.SessionStatusFailed, "", outcome.Err.Error(), onSettled)
			return
		}
		m.settle(id, models.SessionStatusCompleted, outcome.Result, "", onSettled)
	}()

	return nil
}

// settle applies a continuation outcome. The status re-check immediately
// before mutating is the enforcement point for the cancellation race: once a
// session leaves running, late-arriving outcomes are discarded.
func (m *Manager) settle(id string, status models.SessionStatus, result, errMsg string, onSettled func(models.SessionStatus, string, string)) {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if !ok || entry.status != models.SessionStatusRunning {
		m.mu.Unlock()
		return
	}
	entry.status = status
	entry.result = result
	entry.errMsg = errMsg
	entry.kill = nil
	m.mu.Unlock()

	if onSettled != nil {
		onSettled(status, result, errMsg)
	}
}

// Cancel stops a running session: it marks the session cancelled and invokes
// the spawn handle's kill callback. Returns false without side effects when
// the session is unknown or already terminal, making duplicate cancel calls
// safe.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if !ok || entry.status != models.SessionStatusRunning {
		m.mu.Unlock()
		return false
	}
	entry.status = models.SessionStatusCancelled
	kill := entry.kill
	entry.kill = nil
	m.mu.Unlock()

	if kill != nil {
		kill()
	}
	return true
}

// Status returns the session's in-memory status.
func (m *Manager) Status(id string) (models.SessionStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return "", false
	}
	return entry.status, true
}

// Get returns a copy of the session's in-memory state.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{Status: entry.status, Result: entry.result, Error: entry.errMsg}, true
}

// Remove evicts a session's record. Only sessions in a terminal status may
// be removed; removing a running session is rejected.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not tracked", id)
	}
	if !models.IsTerminalStatus(entry.status) {
		return fmt.Errorf("session %s is still %s", id, entry.status)
	}
	delete(m.sessions, id)
	return nil
}
