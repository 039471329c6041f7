// Package lifecycle owns the set of currently-instantiated local-runtime
// engines, their states, and the global capacity budget. It is structured
// into small files by concern:
//
//   - lifecycle.go: Manager type, Config, constructor, simple getters.
//   - ensure.go: EnsureLoaded with in-flight load coalescing.
//   - evict.go: LRU eviction to fit within the capacity budget.
//   - idle.go: idle reaper unloading unused engines proactively.
//   - managed.go: engine.Engine wrapper dispatched through the registry.
//   - events.go: lifecycle event publisher hook.
//   - status.go: status snapshot for /status.
//
// All state transitions for a given engine are serialized: a caller that
// finds an engine mid-Loading or mid-Unloading awaits that transition's done
// channel rather than starting a duplicate. Capacity is reserved when a load
// begins, so the sum of costs over resident engines never exceeds the budget.
package lifecycle

import (
	"sync"
	"time"

	"gend/internal/engine"
	"gend/pkg/types"
)

// State represents the lifecycle state of a local engine instance.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoading   State = "loading"
	StateLoaded    State = "loaded"
	StateBusy      State = "busy"
	StateUnloading State = "unloading"
	StateFailed    State = "failed"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultIdleWindow   = 5 * time.Minute
	defaultFailCooldown = 30 * time.Second
)

// instance tracks one local engine's residency.
type instance struct {
	id       string
	state    State
	cost     int
	lastUsed time.Time
	busy     int
	sess     engine.RuntimeSession
	// done is closed when an in-flight Loading/Unloading transition
	// finishes; waiters block on it instead of duplicating work.
	done     chan struct{}
	loadErr  error
	failedAt time.Time
}

// Config encapsulates all tunables for Manager construction.
type Config struct {
	// Budget is the shared capacity in cost units (0 = unlimited).
	Budget int
	// Pinned engine id: loaded at startup, exempt from eviction.
	Pinned string
	// IdleWindow after which an unused engine is unloaded proactively.
	IdleWindow time.Duration
	// FailCooldown before a Failed engine may be load-retried.
	FailCooldown time.Duration
	// Runtime instantiates local engine sessions.
	Runtime engine.RuntimeAdapter
	// Handles resolves an engine id to its catalog handle.
	Handles func(id string) (types.EngineHandle, bool)
	// QueueIdle reports whether an engine has zero queued or running work.
	// Engines with work are never eviction or idle-unload victims.
	QueueIdle func(id string) bool
	// Publisher receives lifecycle events; nil drops them.
	Publisher EventPublisher
}

type Manager struct {
	mu        sync.Mutex
	budget    int
	pinned    string
	idle      time.Duration
	cooldown  time.Duration
	runtime   engine.RuntimeAdapter
	handles   func(id string) (types.EngineHandle, bool)
	queueIdle func(id string) bool
	publisher EventPublisher

	instances map[string]*instance
	used      int

	loadsTotal     uint64
	evictionsTotal uint64

	stopCh   chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) *Manager {
	m := &Manager{
		budget:    cfg.Budget,
		pinned:    cfg.Pinned,
		idle:      cfg.IdleWindow,
		cooldown:  cfg.FailCooldown,
		runtime:   cfg.Runtime,
		handles:   cfg.Handles,
		queueIdle: cfg.QueueIdle,
		publisher: cfg.Publisher,
		instances: make(map[string]*instance),
		stopCh:    make(chan struct{}),
	}
	if m.idle <= 0 {
		m.idle = defaultIdleWindow
	}
	if m.cooldown <= 0 {
		m.cooldown = defaultFailCooldown
	}
	if m.handles == nil {
		m.handles = func(string) (types.EngineHandle, bool) { return types.EngineHandle{}, false }
	}
	if m.queueIdle == nil {
		m.queueIdle = func(string) bool { return true }
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	return m
}

// MarkBusy records that an execution started against a loaded engine.
func (m *Manager) MarkBusy(id string) {
	m.mu.Lock()
	if inst := m.instances[id]; inst != nil && (inst.state == StateLoaded || inst.state == StateBusy) {
		inst.busy++
		inst.state = StateBusy
		inst.lastUsed = time.Now()
	}
	m.mu.Unlock()
}

// Release returns an execution slot without unloading the engine.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	if inst := m.instances[id]; inst != nil && inst.state == StateBusy {
		inst.busy--
		if inst.busy <= 0 {
			inst.busy = 0
			inst.state = StateLoaded
		}
		inst.lastUsed = time.Now()
	}
	m.mu.Unlock()
}

// State returns the lifecycle state of an engine id.
func (m *Manager) State(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst := m.instances[id]; inst != nil {
		return inst.state
	}
	return StateUnloaded
}
