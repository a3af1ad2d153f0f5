package activity

import (
	"testing"
	"time"

	"github.com/forgeline-io/forgeline/internal/models"
)

func TestCancelInvokesCallbackAndRemoves(t *testing.T) {
	reg := NewRegistry()

	cancelled := false
	reg.Register(&models.Activity{
		ID:        "a1",
		ProjectID: "p1",
		Type:      "chat",
		Cancel:    func() { cancelled = true },
	})

	if !reg.Cancel("a1") {
		t.Fatal("cancel should report the entry was found")
	}
	if !cancelled {
		t.Error("cancel callback was not invoked")
	}
	if _, ok := reg.Get("a1"); ok {
		t.Error("activity still registered after cancel")
	}
	if reg.Cancel("a1") {
		t.Error("second cancel should report not found")
	}
}

func TestCancelWithoutCallback(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&models.Activity{ID: "a1", ProjectID: "p1"})
	if !reg.Cancel("a1") {
		t.Fatal("cancel should succeed for an activity without a callback")
	}
}

func TestListByProject(t *testing.T) {
	reg := NewRegistry()
	base := time.Now().UTC()

	reg.Register(&models.Activity{ID: "a2", ProjectID: "p1", StartedAt: base.Add(time.Second)})
	reg.Register(&models.Activity{ID: "a1", ProjectID: "p1", StartedAt: base})
	reg.Register(&models.Activity{ID: "b1", ProjectID: "p2", StartedAt: base})

	got := reg.ListByProject("p1")
	if len(got) != 2 {
		t.Fatalf("got %d activities, want 2", len(got))
	}
	if got[0].ID != "a1" || got[1].ID != "a2" {
		t.Errorf("activities out of order: %s, %s", got[0].ID, got[1].ID)
	}
	if len(reg.ListByProject("p3")) != 0 {
		t.Error("unknown project should list no activities")
	}
}

func TestUnregister(t *testing.T) {
	reg := NewRegistry()

	called := false
	reg.Register(&models.Activity{ID: "a1", Cancel: func() { called = true }})

	if !reg.Unregister("a1") {
		t.Fatal("unregister should report the entry was found")
	}
	if called {
		t.Error("unregister must not invoke the cancel callback")
	}
	if reg.Unregister("a1") {
		t.Error("second unregister should report not found")
	}
}
