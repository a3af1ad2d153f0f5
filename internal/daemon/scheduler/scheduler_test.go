package scheduler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/forgeline-io/forgeline/internal/graph"
)

// mapEdges is an EdgeSource over a fixed adjacency map.
type mapEdges map[string][]string

func (m mapEdges) EdgesFor(_ context.Context, _ string, ticketIDs []string) (map[string][]string, error) {
	inSet := make(map[string]bool, len(ticketIDs))
	for _, id := range ticketIDs {
		inSet[id] = true
	}
	out := make(map[string][]string)
	for _, id := range ticketIDs {
		for _, dep := range m[id] {
			if inSet[dep] {
				out[id] = append(out[id], dep)
			}
		}
	}
	return out, nil
}

func TestBuildExecutionPlan(t *testing.T) {
	s := New(mapEdges{"A": {"B"}, "B": {"C"}}, 0)

	plan, err := s.BuildExecutionPlan(context.Background(), "p1", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	want := [][]string{{"C"}, {"B"}, {"A"}}
	if !reflect.DeepEqual(plan.Layers, want) {
		t.Errorf("layers = %v, want %v", plan.Layers, want)
	}
	for id, st := range plan.Statuses {
		if st.Status != StatusPending {
			t.Errorf("ticket %s initialized to %s, want pending", id, st.Status)
		}
	}
}

func TestBuildExecutionPlanRejectsCycle(t *testing.T) {
	s := New(mapEdges{"A": {"B"}, "B": {"A"}}, 0)

	_, err := s.BuildExecutionPlan(context.Background(), "p1", []string{"A", "B"})
	var cycleErr *graph.ErrCycle
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error = %v, want ErrCycle", err)
	}
}

func TestExecuteDagPlanFailureIsolation(t *testing.T) {
	// A -> {B, C}, {B, C} -> D. B fails, C succeeds: A must be skipped
	// transitively, C and D unaffected by B's failure.
	s := New(mapEdges{"A": {"B", "C"}, "B": {"D"}, "C": {"D"}}, 0)
	plan, err := s.BuildExecutionPlan(context.Background(), "p1", []string{"A", "B", "C", "D"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	launch := func(_ context.Context, id string) error {
		if id == "B" {
			return errors.New("build broke")
		}
		return nil
	}

	final := s.ExecuteDagPlan(context.Background(), plan, launch, nil)

	expect := map[string]TicketStatus{
		"D": StatusDone,
		"B": StatusFailed,
		"C": StatusDone,
		"A": StatusSkipped,
	}
	for id, want := range expect {
		if final[id].Status != want {
			t.Errorf("%s = %s, want %s", id, final[id].Status, want)
		}
	}
	if final["B"].Reason != "build broke" {
		t.Errorf("B reason = %q", final["B"].Reason)
	}
	if final["A"].Reason != "Prerequisite failed" {
		t.Errorf("A reason = %q, want prerequisite failure", final["A"].Reason)
	}
}

func TestExecuteDagPlanTransitiveSkip(t *testing.T) {
	// c -> b -> a; a fails. b is skipped directly, c is skipped because its
	// already-skipped parent counts as failed for propagation.
	s := New(mapEdges{"b": {"a"}, "c": {"b"}}, 0)
	plan, err := s.BuildExecutionPlan(context.Background(), "p1", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	final := s.ExecuteDagPlan(context.Background(), plan, func(_ context.Context, id string) error {
		return fmt.Errorf("fail %s", id)
	}, nil)

	if final["a"].Status != StatusFailed {
		t.Errorf("a = %s, want failed", final["a"].Status)
	}
	for _, id := range []string{"b", "c"} {
		if final[id].Status != StatusSkipped {
			t.Errorf("%s = %s, want skipped", id, final[id].Status)
		}
	}
}

func TestExecuteDagPlanLayerBarrier(t *testing.T) {
	// b and c depend on a; d depends on b and c. Track launch order to
	// verify the barrier between layers.
	s := New(mapEdges{"b": {"a"}, "c": {"a"}, "d": {"b", "c"}}, 0)
	plan, err := s.BuildExecutionPlan(context.Background(), "p1", []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	var mu sync.Mutex
	var order []string
	launch := func(_ context.Context, id string) error {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return nil
	}

	final := s.ExecuteDagPlan(context.Background(), plan, launch, nil)
	for id, st := range final {
		if st.Status != StatusDone {
			t.Errorf("%s = %s, want done", id, st.Status)
		}
	}

	index := make(map[string]int)
	for i, id := range order {
		index[id] = i
	}
	if index["a"] > index["b"] || index["a"] > index["c"] {
		t.Errorf("a launched after its dependents: %v", order)
	}
	if index["d"] < index["b"] || index["d"] < index["c"] {
		t.Errorf("d launched before layer 2 finished: %v", order)
	}
}

func TestExecuteDagPlanLayerConcurrency(t *testing.T) {
	// b and c are independent; both must be in flight at once.
	s := New(mapEdges{}, 0)
	plan, err := s.BuildExecutionPlan(context.Background(), "p1", []string{"b", "c"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	started := make(chan string, 2)
	release := make(chan struct{})
	launch := func(_ context.Context, id string) error {
		started <- id
		<-release
		return nil
	}

	done := make(chan map[string]TicketState, 1)
	go func() {
		done <- s.ExecuteDagPlan(context.Background(), plan, launch, nil)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("layer tickets did not run concurrently")
		}
	}
	close(release)
	<-done
}

func TestExecuteDagPlanStatusObserver(t *testing.T) {
	s := New(mapEdges{"b": {"a"}}, 0)
	plan, err := s.BuildExecutionPlan(context.Background(), "p1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	var mu sync.Mutex
	seen := make(map[string][]TicketStatus)
	onChange := func(id string, state TicketState) {
		mu.Lock()
		seen[id] = append(seen[id], state.Status)
		mu.Unlock()
	}

	s.ExecuteDagPlan(context.Background(), plan, func(_ context.Context, id string) error {
		return nil
	}, onChange)

	for _, id := range []string{"a", "b"} {
		want := []TicketStatus{StatusRunning, StatusDone}
		if !reflect.DeepEqual(seen[id], want) {
			t.Errorf("%s transitions = %v, want %v", id, seen[id], want)
		}
	}
}

func TestExecuteDagPlanRecoversPanic(t *testing.T) {
	s := New(mapEdges{}, 0)
	plan, err := s.BuildExecutionPlan(context.Background(), "p1", []string{"a"})
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}

	final := s.ExecuteDagPlan(context.Background(), plan, func(_ context.Context, _ string) error {
		panic("launcher bug")
	}, nil)

	if final["a"].Status != StatusFailed {
		t.Errorf("a = %s, want failed after panic", final["a"].Status)
	}
}
