package engine

import (
	"sort"
	"sync"

	"gend/pkg/types"
)

// Registry maps engine ids to runnable Engine values. It is consumed by the
// dispatcher and fed by startup wiring and the download manager.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds or replaces an engine. Handles are immutable once registered;
// replacement is only expected when a download completes for a known id.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	r.engines[e.Handle().ID] = e
	r.mu.Unlock()
}

// Lookup returns the engine registered under id.
func (r *Registry) Lookup(id string) (Engine, bool) {
	r.mu.RLock()
	e, ok := r.engines[id]
	r.mu.RUnlock()
	return e, ok
}

// Handles returns all registered handles, sorted by id for determinism.
func (r *Registry) Handles() []types.EngineHandle {
	r.mu.RLock()
	out := make([]types.EngineHandle, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e.Handle())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
