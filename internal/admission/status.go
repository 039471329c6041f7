package admission

// Position reports the wait position of a request: the number of waiting
// entries ahead of it, or 0 when it is running. The second return is the
// sub-state ("waiting" or "running"); ok is false for unknown ids.
func (q *Queue) Position(requestID string) (pos int, state string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.index[requestID]
	if e == nil {
		return 0, "", false
	}
	if e.state == stateRunning {
		return 0, "running", true
	}
	eq := q.engines[e.engineID]
	for i, w := range eq.waiting {
		if w == e {
			return i, "waiting", true
		}
	}
	return 0, "", false
}

// Engine returns the engine a request is queued against.
func (q *Queue) Engine(requestID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.index[requestID]; e != nil {
		return e.engineID, true
	}
	return "", false
}

// Depth reports waiting and running entry counts for an engine.
func (q *Queue) Depth(engineID string) (waiting, running int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if eq := q.engines[engineID]; eq != nil {
		return len(eq.waiting), len(eq.running)
	}
	return 0, 0
}

// Idle reports whether an engine has zero queued or running work. Consumed
// by the lifecycle manager's eviction and idle-unload victim checks.
func (q *Queue) Idle(engineID string) bool {
	w, r := q.Depth(engineID)
	return w == 0 && r == 0
}

// MaxDepth returns the configured backpressure limit.
func (q *Queue) MaxDepth() int { return q.maxDepth }
