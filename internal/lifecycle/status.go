package lifecycle

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	Budget         int
	Used           int
	LoadsTotal     uint64
	EvictionsTotal uint64
	Instances      []InstanceStatus
}

// InstanceStatus summarizes one resident engine.
type InstanceStatus struct {
	EngineID     string
	State        State
	LastUsedUnix int64
	CapacityCost int
	Busy         int
	Pinned       bool
}

// Status returns a point-in-time view of all resident engines.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Budget:         m.budget,
		Used:           m.used,
		LoadsTotal:     m.loadsTotal,
		EvictionsTotal: m.evictionsTotal,
	}
	s.Instances = make([]InstanceStatus, 0, len(m.instances))
	for _, inst := range m.instances {
		s.Instances = append(s.Instances, InstanceStatus{
			EngineID:     inst.id,
			State:        inst.state,
			LastUsedUnix: inst.lastUsed.Unix(),
			CapacityCost: inst.cost,
			Busy:         inst.busy,
			Pinned:       inst.id == m.pinned,
		})
	}
	return s
}

// Used returns the capacity units currently reserved or occupied.
func (m *Manager) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
