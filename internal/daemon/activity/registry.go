// Package activity tracks ephemeral, non-persisted units of work such as
// interactive chat streams. Entries live only in process memory.
package activity

import (
	"sort"
	"sync"

	"github.com/forgeline-io/forgeline/internal/models"
)

// Registry is a keyed registry of live activities. Construct one per daemon
// and inject it into the boundaries that create activities.
type Registry struct {
	mu         sync.Mutex
	activities map[string]*models.Activity
}

// NewRegistry creates an empty activity registry.
func NewRegistry() *Registry {
	return &Registry{activities: make(map[string]*models.Activity)}
}

// Register adds an activity to the registry.
func (r *Registry) Register(a *models.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities[a.ID] = a
}

// Unregister removes an activity without invoking its cancel callback.
// Returns whether an entry was found.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.activities[id]
	delete(r.activities, id)
	return ok
}

// Cancel invokes the activity's cancel callback, if any, then removes the
// entry. Returns whether an entry was found.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	a, ok := r.activities[id]
	delete(r.activities, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if a.Cancel != nil {
		a.Cancel()
	}
	return true
}

// Get returns the activity with the given id.
func (r *Registry) Get(id string) (*models.Activity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activities[id]
	return a, ok
}

// ListByProject returns the project's activities ordered by start time.
func (r *Registry) ListByProject(projectID string) []*models.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Activity
	for _, a := range r.activities {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
