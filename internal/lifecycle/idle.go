package lifecycle

import "time"

// Start launches the idle reaper: non-pinned engines with zero running or
// queued work for longer than the idle window are unloaded proactively,
// independent of capacity pressure.
func (m *Manager) Start() {
	go m.reap()
}

// Close stops the idle reaper. Resident sessions are left to the process
// lifetime; callers wanting a full drain unload engines explicitly.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) reap() {
	interval := m.idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			for _, id := range m.idleCandidates() {
				if err := m.Unload(id); err == nil {
					m.publisher.Publish(Event{Name: "idle_unload", EngineID: id, Fields: map[string]any{}})
				}
			}
		}
	}
}

func (m *Manager) idleCandidates() []string {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, inst := range m.instances {
		if inst.id == m.pinned {
			continue
		}
		if inst.state != StateLoaded || inst.busy > 0 {
			continue
		}
		if !m.queueIdle(inst.id) {
			continue
		}
		if now.Sub(inst.lastUsed) > m.idle {
			out = append(out, inst.id)
		}
	}
	return out
}
