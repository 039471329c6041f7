package lifecycle

import (
	"errors"
	"fmt"

	"gend/internal/engine"
)

// errLoadRaced signals that another caller installed the target engine while
// the lock was dropped for a victim Close. The caller must re-read instance
// state instead of starting a second load.
var errLoadRaced = errors.New("lifecycle: load raced during eviction")

// evictUntilFitsLocked evicts least-recently-used idle engines until cost
// fits the budget. Called and returns with m.mu held; the lock is dropped
// around session Close so a slow unload never blocks unrelated engines.
// Fails with CapacityExceeded when no victim qualifies: the caller's routing
// layer falls back to another engine rather than waiting.
func (m *Manager) evictUntilFitsLocked(target string, cost int) error {
	for m.used+cost > m.budget {
		var victim *instance
		for _, inst := range m.instances {
			if inst.state != StateLoaded || inst.busy > 0 {
				continue
			}
			if inst.id == m.pinned || inst.id == target {
				continue
			}
			if !m.queueIdle(inst.id) {
				continue
			}
			if victim == nil || inst.lastUsed.Before(victim.lastUsed) {
				victim = inst
			}
		}
		if victim == nil {
			return engine.Fail(engine.CapacityExceeded, target,
				fmt.Sprintf("need %d units, %d/%d in use, no evictable engine", cost, m.used, m.budget))
		}

		victim.state = StateUnloading
		victim.done = make(chan struct{})
		sess := victim.sess
		m.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
		m.mu.Lock()
		delete(m.instances, victim.id)
		m.used -= victim.cost
		if m.used < 0 {
			m.used = 0
		}
		m.evictionsTotal++
		close(victim.done)
		m.publisher.Publish(Event{Name: "evict", EngineID: victim.id, Fields: map[string]any{"freed": victim.cost, "for": target}})

		if m.instances[target] != nil {
			return errLoadRaced
		}
	}
	return nil
}
