// Package admission provides the per-engine FIFO queue limiting concurrent
// execution. It enforces at most one entry per engine slot in flight
// (MaxConcurrency slots), reports wait positions that only ever decrease for
// a waiting caller, and supports cancellation of both waiting and running
// entries. Backpressure is fail-fast: past the configured depth, Enqueue
// returns a classified QueueFull that the routing layer treats as a fallback
// trigger, not a fatal error.
package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gend/internal/engine"
)

// Defaults applied when corresponding Config fields are unset.
const defaultMaxDepth = 32

// Config encapsulates queue tunables.
type Config struct {
	// MaxDepth is the maximum number of waiting entries per engine.
	MaxDepth int
}

type Queue struct {
	mu       sync.Mutex
	maxDepth int
	engines  map[string]*engineQueue
	index    map[string]*entry
}

type engineQueue struct {
	id          string
	concurrency int
	waiting     []*entry
	running     map[string]*entry
}

const (
	stateWaiting = iota
	stateRunning
	stateDone
)

type entry struct {
	requestID  string
	engineID   string
	enqueuedAt time.Time
	state      int
	// admit is closed when the entry moves to the running sub-state.
	admit chan struct{}
	// cancelled is closed when the entry is cancelled while waiting.
	cancelled chan struct{}
	// cancelRun interrupts the executing call, when bound.
	cancelRun context.CancelFunc
}

func New(cfg Config) *Queue {
	q := &Queue{
		maxDepth: cfg.MaxDepth,
		engines:  make(map[string]*engineQueue),
		index:    make(map[string]*entry),
	}
	if q.maxDepth <= 0 {
		q.maxDepth = defaultMaxDepth
	}
	return q
}

// Enqueue registers a work item against an engine's queue. concurrency is
// the engine's MaxConcurrency (clamped to at least 1). The returned ticket
// must be Awaited before executing and Released afterwards.
func (q *Queue) Enqueue(engineID string, concurrency int, requestID string) (*Ticket, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.index[requestID]; dup {
		return nil, errDuplicateRequest{id: requestID}
	}
	eq := q.engines[engineID]
	if eq == nil {
		eq = &engineQueue{id: engineID, concurrency: concurrency, running: make(map[string]*entry)}
		q.engines[engineID] = eq
	}
	eq.concurrency = concurrency
	if len(eq.waiting) >= q.maxDepth {
		return nil, engine.Fail(engine.QueueFull, engineID,
			fmt.Sprintf("queue depth %d reached", q.maxDepth))
	}
	e := &entry{
		requestID:  requestID,
		engineID:   engineID,
		enqueuedAt: time.Now(),
		state:      stateWaiting,
		admit:      make(chan struct{}),
		cancelled:  make(chan struct{}),
	}
	eq.waiting = append(eq.waiting, e)
	q.index[requestID] = e
	q.pumpLocked(eq)
	return &Ticket{q: q, e: e}, nil
}

// pumpLocked promotes waiting entries into free running slots, strict FIFO.
func (q *Queue) pumpLocked(eq *engineQueue) {
	for len(eq.running) < eq.concurrency && len(eq.waiting) > 0 {
		head := eq.waiting[0]
		eq.waiting = eq.waiting[1:]
		head.state = stateRunning
		eq.running[head.requestID] = head
		close(head.admit)
	}
}

// removeLocked detaches an entry from whichever sub-state holds it and frees
// its slot. Idempotent.
func (q *Queue) removeLocked(e *entry) {
	eq := q.engines[e.engineID]
	if eq == nil || e.state == stateDone {
		return
	}
	switch e.state {
	case stateWaiting:
		for i, w := range eq.waiting {
			if w == e {
				eq.waiting = append(eq.waiting[:i], eq.waiting[i+1:]...)
				break
			}
		}
	case stateRunning:
		delete(eq.running, e.requestID)
	}
	e.state = stateDone
	delete(q.index, e.requestID)
	q.pumpLocked(eq)
}

// Cancel removes a waiting entry (positions behind it shift down by one) or
// signals a running entry's bound context and immediately frees its slot.
// Returns false for unknown request ids.
func (q *Queue) Cancel(requestID string) bool {
	q.mu.Lock()
	e := q.index[requestID]
	if e == nil {
		q.mu.Unlock()
		return false
	}
	running := e.state == stateRunning
	cancelRun := e.cancelRun
	close(e.cancelled)
	q.removeLocked(e)
	q.mu.Unlock()
	if running && cancelRun != nil {
		// Cooperative: the executing call observes its context at the next
		// checkpoint. Best-effort, not guaranteed instantaneous.
		cancelRun()
	}
	return true
}
