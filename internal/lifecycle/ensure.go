package lifecycle

import (
	"context"
	"time"

	"gend/internal/catalog"
	"gend/internal/engine"
)

// EnsureLoaded returns a ready session for the engine, loading it first if
// necessary. Concurrent callers against a mid-Loading engine await the same
// in-flight load. Fails with CapacityExceeded when the budget cannot be
// freed, or LoadFailed when the runtime load errors (or the engine is still
// in its failure cooldown).
func (m *Manager) EnsureLoaded(ctx context.Context, id string) (engine.RuntimeSession, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.mu.Lock()
		inst := m.instances[id]
		if inst != nil {
			switch inst.state {
			case StateLoaded, StateBusy:
				inst.lastUsed = time.Now()
				sess := inst.sess
				m.mu.Unlock()
				return sess, nil
			case StateLoading, StateUnloading:
				// Await the in-flight transition, then re-check from the
				// top: the load may have failed, or an eviction may have
				// raced the completion.
				done := inst.done
				m.mu.Unlock()
				select {
				case <-done:
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			case StateFailed:
				if time.Since(inst.failedAt) < m.cooldown {
					m.mu.Unlock()
					return nil, engine.Fail(engine.LoadFailed, id, "in cooldown after load failure")
				}
				// Cooldown elapsed: forget the failure and retry the load.
				delete(m.instances, id)
			}
		}

		handle, ok := m.handles(id)
		if !ok {
			m.mu.Unlock()
			return nil, engine.Fail(engine.NotFound, id, "not in catalog")
		}
		cost := handle.CapacityCost
		if cost <= 0 {
			cost = catalog.EstimateCost(handle.ArtifactPath)
		}

		if m.budget > 0 {
			if err := m.evictUntilFitsLocked(id, cost); err != nil {
				m.mu.Unlock()
				if err == errLoadRaced {
					// Another caller installed this engine while the lock
					// was dropped for a victim Close. Coalesce onto its
					// in-flight load instead of starting a second one.
					continue
				}
				return nil, err
			}
		}

		// Reserve capacity for the duration of the load so a concurrent
		// ensure cannot overcommit the budget mid-load.
		inst = &instance{
			id:       id,
			state:    StateLoading,
			cost:     cost,
			lastUsed: time.Now(),
			done:     make(chan struct{}),
		}
		m.instances[id] = inst
		m.used += cost
		m.mu.Unlock()
		m.publisher.Publish(Event{Name: "load_start", EngineID: id, Fields: map[string]any{"cost": cost}})

		sess, err := m.runtime.Load(ctx, handle)

		m.mu.Lock()
		if err != nil {
			inst.state = StateFailed
			inst.failedAt = time.Now()
			inst.loadErr = err
			m.used -= cost
			close(inst.done)
			m.mu.Unlock()
			m.publisher.Publish(Event{Name: "load_error", EngineID: id, Fields: map[string]any{"error": err.Error()}})
			if _, ok := engine.AsFailure(err); ok {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, engine.Wrap(engine.LoadFailed, id, err)
		}
		inst.state = StateLoaded
		inst.sess = sess
		inst.lastUsed = time.Now()
		m.loadsTotal++
		close(inst.done)
		m.mu.Unlock()
		m.publisher.Publish(Event{Name: "load_ready", EngineID: id, Fields: map[string]any{"cost": cost}})
		return sess, nil
	}
}

// Preload loads the pinned engine, if one is configured. Called at startup.
func (m *Manager) Preload(ctx context.Context) error {
	if m.pinned == "" {
		return nil
	}
	_, err := m.EnsureLoaded(ctx, m.pinned)
	return err
}

// Unload drains and removes a resident engine. It refuses engines that are
// busy or hold queued work.
func (m *Manager) Unload(id string) error {
	m.mu.Lock()
	inst := m.instances[id]
	if inst == nil || inst.state != StateLoaded {
		m.mu.Unlock()
		return engine.Fail(engine.NotFound, id, "not resident")
	}
	if inst.busy > 0 || !m.queueIdle(id) {
		m.mu.Unlock()
		return engine.Fail(engine.Overloaded, id, "has active work")
	}
	inst.state = StateUnloading
	inst.done = make(chan struct{})
	sess := inst.sess
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "unload_start", EngineID: id, Fields: map[string]any{}})

	if sess != nil {
		_ = sess.Close()
	}

	m.mu.Lock()
	delete(m.instances, id)
	m.used -= inst.cost
	if m.used < 0 {
		m.used = 0
	}
	close(inst.done)
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "unload_done", EngineID: id, Fields: map[string]any{}})
	return nil
}
