package process

import (
	"context"
	"testing"
	"time"

	"github.com/forgeline-io/forgeline/internal/models"
)

// fakeProvider hands out handles whose outcomes the test controls.
type fakeProvider struct {
	handles map[string]*fakeHandle
}

type fakeHandle struct {
	done   chan Outcome
	killed chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{handles: make(map[string]*fakeHandle)}
}

func (p *fakeProvider) Spawn(_ context.Context, params StartParams) (*Handle, error) {
	h := &fakeHandle{
		done:   make(chan Outcome, 1),
		killed: make(chan struct{}),
	}
	p.handles[params.SessionID] = h
	return &Handle{
		Done: h.done,
		Kill: func() { close(h.killed) },
	}, nil
}

func (h *fakeHandle) settle(o Outcome) {
	h.done <- o
	close(h.done)
}

func waitForStatus(t *testing.T, m *Manager, id string, want models.SessionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := m.Status(id); ok && got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := m.Status(id)
	t.Fatalf("session %s status = %s, want %s", id, got, want)
}

func TestStartAndComplete(t *testing.T) {
	m := NewManager()
	p := newFakeProvider()

	settled := make(chan models.SessionStatus, 1)
	err := m.Start(context.Background(), "s1", StartParams{SessionID: "s1"}, p,
		func(status models.SessionStatus, result, errMsg string) { settled <- status })
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if got, _ := m.Status("s1"); got != models.SessionStatusRunning {
		t.Fatalf("status after start = %s, want running", got)
	}

	p.handles["s1"].settle(Outcome{Result: "ok"})
	waitForStatus(t, m, "s1", models.SessionStatusCompleted)

	select {
	case got := <-settled:
		if got != models.SessionStatusCompleted {
			t.Errorf("onSettled status = %s, want completed", got)
		}
	case <-time.After(time.Second):
		t.Error("onSettled was not invoked")
	}

	snap, _ := m.Get("s1")
	if snap.Result != "ok" {
		t.Errorf("result = %q, want ok", snap.Result)
	}
}

func TestCancelBeatsLateCompletion(t *testing.T) {
	m := NewManager()
	p := newFakeProvider()

	if err := m.Start(context.Background(), "s1", StartParams{SessionID: "s1"}, p, nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !m.Cancel("s1") {
		t.Fatal("cancel of a running session should return true")
	}
	select {
	case <-p.handles["s1"].killed:
	case <-time.After(time.Second):
		t.Fatal("kill callback was not invoked")
	}

	// A completion resolving after cancellation must not change the status.
	p.handles["s1"].settle(Outcome{Result: "late"})
	time.Sleep(50 * time.Millisecond)

	if got, _ := m.Status("s1"); got != models.SessionStatusCancelled {
		t.Errorf("status = %s, want cancelled after late completion", got)
	}
	snap, _ := m.Get("s1")
	if snap.Result != "" {
		t.Errorf("late result was stored: %q", snap.Result)
	}
}

func TestCancelIdempotent(t *testing.T) {
	m := NewManager()
	p := newFakeProvider()

	if m.Cancel("unknown") {
		t.Error("cancel of an unknown session should return false")
	}

	if err := m.Start(context.Background(), "s1", StartParams{SessionID: "s1"}, p, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.handles["s1"].settle(Outcome{Err: context.Canceled})
	waitForStatus(t, m, "s1", models.SessionStatusFailed)

	if m.Cancel("s1") {
		t.Error("cancel of a terminal session should return false")
	}
	if got, _ := m.Status("s1"); got != models.SessionStatusFailed {
		t.Errorf("status changed by rejected cancel: %s", got)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	m := NewManager()
	p := newFakeProvider()

	for _, id := range []string{"a", "b"} {
		if err := m.Start(context.Background(), id, StartParams{SessionID: id}, p, nil); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}

	if !m.Cancel("a") {
		t.Fatal("cancel a")
	}
	p.handles["b"].settle(Outcome{Result: "done"})
	waitForStatus(t, m, "b", models.SessionStatusCompleted)

	if got, _ := m.Status("a"); got != models.SessionStatusCancelled {
		t.Errorf("a = %s, want cancelled", got)
	}
	if got, _ := m.Status("b"); got != models.SessionStatusCompleted {
		t.Errorf("b = %s, want completed", got)
	}
}

func TestRemoveRequiresTerminal(t *testing.T) {
	m := NewManager()
	p := newFakeProvider()

	if err := m.Start(context.Background(), "s1", StartParams{SessionID: "s1"}, p, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Remove("s1"); err == nil {
		t.Error("removing a running session should be rejected")
	}

	p.handles["s1"].settle(Outcome{Result: "ok"})
	waitForStatus(t, m, "s1", models.SessionStatusCompleted)

	if err := m.Remove("s1"); err != nil {
		t.Errorf("removing a terminal session: %v", err)
	}
	if _, ok := m.Status("s1"); ok {
		t.Error("session still tracked after remove")
	}
}
