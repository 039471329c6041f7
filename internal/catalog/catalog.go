// Package catalog holds the model catalog: engine identity, modality,
// provider, capacity class and constraints. The dispatch engine queries it;
// persistence of the catalog itself lives outside this module.
package catalog

import (
	"sort"
	"sync"

	"gend/pkg/types"
)

type Catalog struct {
	mu      sync.RWMutex
	handles map[string]types.EngineHandle
}

func New(handles ...types.EngineHandle) *Catalog {
	c := &Catalog{handles: make(map[string]types.EngineHandle, len(handles))}
	for _, h := range handles {
		c.handles[h.ID] = normalize(h)
	}
	return c
}

// GetEngineHandle looks up a handle by engine id.
func (c *Catalog) GetEngineHandle(id string) (types.EngineHandle, bool) {
	c.mu.RLock()
	h, ok := c.handles[id]
	c.mu.RUnlock()
	return h, ok
}

// ListEngines returns all handles, optionally filtered by modality,
// sorted by id for determinism.
func (c *Catalog) ListEngines(modality types.Modality) []types.EngineHandle {
	c.mu.RLock()
	out := make([]types.EngineHandle, 0, len(c.handles))
	for _, h := range c.handles {
		if modality != "" && h.Modality != modality {
			continue
		}
		out = append(out, h)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Register adds a handle, typically when a download job completes. An
// existing handle with the same id is replaced.
func (c *Catalog) Register(h types.EngineHandle) {
	c.mu.Lock()
	c.handles[h.ID] = normalize(h)
	c.mu.Unlock()
}

// normalize fills defaults so downstream components can rely on invariants.
func normalize(h types.EngineHandle) types.EngineHandle {
	if h.Modality == "" {
		h.Modality = types.ModalityText
	}
	if h.MaxConcurrency <= 0 {
		if h.Kind == types.KindLocal {
			h.MaxConcurrency = 1
		} else {
			h.MaxConcurrency = 4
		}
	}
	if h.Kind == types.KindLocal {
		h.Tier = types.TierFree
	} else if h.Tier == "" {
		h.Tier = types.TierStandard
	}
	if h.Name == "" {
		h.Name = h.ID
	}
	return h
}
