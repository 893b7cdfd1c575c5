package collab

import (
	"sync"

	"codecollab-server/core"
)

// Registry maps live connections to the display name they joined with.
type Registry struct {
	mu    sync.RWMutex
	names map[core.ConnectionID]string
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[core.ConnectionID]string)}
}

// Register inserts or overwrites the display name of a connection.
func (r *Registry) Register(id core.ConnectionID, displayName string) {
	r.mu.Lock()
	r.names[id] = displayName
	r.mu.Unlock()
}

func (r *Registry) Lookup(id core.ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

func (r *Registry) Remove(id core.ConnectionID) {
	r.mu.Lock()
	delete(r.names, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
