package sessionlog

import "sync"

// Registry hands out one Writer per session id. Construct one per daemon and
// inject it wherever sessions are spawned; Release evicts a writer once its
// session ends.
type Registry struct {
	mu      sync.Mutex
	writers map[string]*Writer
}

// NewRegistry creates an empty writer registry.
func NewRegistry() *Registry {
	return &Registry{writers: make(map[string]*Writer)}
}

// Writer returns the existing writer for the session, or creates one logging
// to path. The path of an existing writer is not changed.
func (r *Registry) Writer(sessionID, path string) *Writer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.writers[sessionID]; ok {
		return w
	}
	w := NewWriter(sessionID, path)
	r.writers[sessionID] = w
	return w
}

// Release evicts the session's writer from the registry.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.writers, sessionID)
}
