package admission

import "context"

// Ticket is the caller's handle on one queue entry.
type Ticket struct {
	q *Queue
	e *entry
}

// RequestID returns the id this ticket was enqueued under.
func (t *Ticket) RequestID() string { return t.e.requestID }

// Await blocks until the entry is admitted to a running slot, the entry is
// cancelled, or ctx is done. On non-nil error the entry has already been
// removed from the queue.
func (t *Ticket) Await(ctx context.Context) error {
	select {
	case <-t.e.admit:
		return nil
	case <-t.e.cancelled:
		return errCancelled{id: t.e.requestID}
	case <-ctx.Done():
		t.q.mu.Lock()
		t.q.removeLocked(t.e)
		t.q.mu.Unlock()
		return ctx.Err()
	}
}

// Bind attaches the cancel func of the executing call's context so a later
// Cancel can interrupt it. Call after Await succeeds.
func (t *Ticket) Bind(cancel context.CancelFunc) {
	t.q.mu.Lock()
	t.e.cancelRun = cancel
	t.q.mu.Unlock()
}

// Release frees the entry's slot and admits the next waiting entry.
// Idempotent: a no-op when the entry was already cancelled.
func (t *Ticket) Release() {
	t.q.mu.Lock()
	t.q.removeLocked(t.e)
	t.q.mu.Unlock()
}
