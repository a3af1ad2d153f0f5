// Package scheduler orchestrates DAG-respecting concurrent execution of a
// ticket set. Layers run strictly in order; tickets within a layer run
// concurrently through a caller-supplied launch capability.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/forgeline-io/forgeline/internal/graph"
)

// TicketStatus is the execution status of one ticket within a batch.
type TicketStatus string

const (
	StatusPending TicketStatus = "pending"
	StatusRunning TicketStatus = "running"
	StatusDone    TicketStatus = "done"
	StatusFailed  TicketStatus = "failed"
	StatusSkipped TicketStatus = "skipped"
)

// skipReason is attached to tickets skipped because a dependency failed.
const skipReason = "Prerequisite failed"

// TicketState pairs an execution status with an optional reason string.
type TicketState struct {
	Status TicketStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// Plan is a layered execution plan over a ticket set.
type Plan struct {
	ProjectID string
	Layers    [][]string
	Deps      map[string][]string
	Statuses  map[string]TicketState
}

// EdgeSource provides dependency edges restricted to a ticket subset.
type EdgeSource interface {
	EdgesFor(ctx context.Context, projectID string, ticketIDs []string) (map[string][]string, error)
}

// LaunchFunc runs one ticket's work to completion. A non-nil error marks the
// ticket failed; it never fails the batch.
type LaunchFunc func(ctx context.Context, ticketID string) error

// StatusChangeFunc observes every status mutation. It is invoked
// synchronously with respect to the mutation, so implementations must not
// block for long.
type StatusChangeFunc func(ticketID string, state TicketState)

// Scheduler builds and executes batch plans.
type Scheduler struct {
	edges       EdgeSource
	maxParallel int // per-layer launch limit; 0 = unlimited
}

// New creates a scheduler. maxParallel bounds concurrent launches within a
// layer; 0 means unlimited.
func New(edges EdgeSource, maxParallel int) *Scheduler {
	return &Scheduler{edges: edges, maxParallel: maxParallel}
}

// BuildExecutionPlan loads the subset's dependency edges, validates them,
// and computes topological layers with every ticket initialized to pending.
func (s *Scheduler) BuildExecutionPlan(ctx context.Context, projectID string, ticketIDs []string) (*Plan, error) {
	deps, err := s.edges.EdgesFor(ctx, projectID, ticketIDs)
	if err != nil {
		return nil, fmt.Errorf("load dependency edges: %w", err)
	}

	// The mutation path keeps the store acyclic, but layering is undefined
	// on cyclic input, so validate before handing the subset to TopoLayers.
	if cycle := graph.DetectCycle(deps); cycle != nil {
		return nil, &graph.ErrCycle{Path: cycle}
	}

	statuses := make(map[string]TicketState, len(ticketIDs))
	for _, id := range ticketIDs {
		statuses[id] = TicketState{Status: StatusPending}
	}

	return &Plan{
		ProjectID: projectID,
		Layers:    graph.TopoLayers(ticketIDs, deps),
		Deps:      deps,
		Statuses:  statuses,
	}, nil
}

// ExecuteDagPlan processes layers strictly in order. Within a layer, tickets
// whose dependencies failed or were skipped are marked skipped without being
// launched; the rest run concurrently. The next layer never begins until
// every launch in the current layer has reached an outcome. A failing task
// becomes a failed status, never an error from this call.
func (s *Scheduler) ExecuteDagPlan(ctx context.Context, plan *Plan, launch LaunchFunc, onChange StatusChangeFunc) map[string]TicketState {
	var mu sync.Mutex
	statuses := make(map[string]TicketState, len(plan.Statuses))
	for id, st := range plan.Statuses {
		statuses[id] = st
	}

	setStatus := func(id string, state TicketState) {
		mu.Lock()
		statuses[id] = state
		mu.Unlock()
		if onChange != nil {
			onChange(id, state)
		}
	}

	for _, layer := range plan.Layers {
		group, groupCtx := errgroup.WithContext(ctx)
		if s.maxParallel > 0 {
			group.SetLimit(s.maxParallel)
		}

		for _, ticketID := range layer {
			// Skip-propagation: a failed or skipped dependency poisons the
			// ticket. Skipped parents count as failed here, which makes the
			// propagation transitive layer by layer.
			mu.Lock()
			blocked := false
			for _, dep := range plan.Deps[ticketID] {
				if st := statuses[dep].Status; st == StatusFailed || st == StatusSkipped {
					blocked = true
					break
				}
			}
			mu.Unlock()

			if blocked {
				setStatus(ticketID, TicketState{Status: StatusSkipped, Reason: skipReason})
				continue
			}

			setStatus(ticketID, TicketState{Status: StatusRunning})
			id := ticketID
			group.Go(func() error {
				if err := s.runLaunch(groupCtx, launch, id); err != nil {
					setStatus(id, TicketState{Status: StatusFailed, Reason: err.Error()})
				} else {
					setStatus(id, TicketState{Status: StatusDone})
				}
				return nil // task failure is isolated, never fails the batch
			})
		}

		// Hard barrier: the next layer starts only when every launch in
		// this one has settled.
		_ = group.Wait()
	}

	return statuses
}

// runLaunch invokes the launch capability, converting panics into errors so
// a misbehaving launcher cannot take down the batch.
func (s *Scheduler) runLaunch(ctx context.Context, launch LaunchFunc, ticketID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("launch panicked: %v", r)
		}
	}()
	return launch(ctx, ticketID)
}
