package session

import "time"

// Start launches the idle-expiry reaper: sessions with no activity past the
// idle window are closed and their context discarded from active memory.
func (m *Manager) Start() {
	go m.reap()
}

// Stop halts the reaper.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) reap() {
	interval := m.idleExpiry / 4
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
			m.expireIdle(time.Now())
		}
	}
}

func (m *Manager) expireIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.closed {
			// Closed sessions linger one sweep for status queries.
			delete(m.sessions, id)
			continue
		}
		// Skip sessions with an exchange in flight.
		if len(s.exch) > 0 {
			continue
		}
		if now.Sub(s.updatedAt) > m.idleExpiry {
			s.closed = true
			s.turns = nil
		}
	}
}
