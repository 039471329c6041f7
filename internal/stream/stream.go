// Package stream produces the canonical ordered event sequence every
// dispatch emits, regardless of modality: zero or more model-selected
// events, zero or more token events, then exactly one terminal complete or
// error event. The sequence is produced lazily through a channel and is not
// restartable; a new dispatch produces a new sequence.
package stream

import (
	"sync"

	"gend/pkg/types"
)

// Emitter multiplexes a dispatch's incremental output into one Event
// channel. It enforces the single-terminal guarantee: the first Complete or
// Error wins, later emissions are dropped, and the channel is closed.
type Emitter struct {
	requestID string
	ch        chan types.Event
	mu        sync.Mutex
	done      bool
}

// NewEmitter creates an emitter. buf sizes the event channel; token-heavy
// streams benefit from a small buffer so the producer is not lockstepped
// with the consumer.
func NewEmitter(requestID string, buf int) *Emitter {
	if buf < 0 {
		buf = 0
	}
	return &Emitter{requestID: requestID, ch: make(chan types.Event, buf)}
}

// Events returns the consumer side of the sequence. The channel is closed
// after the terminal event.
func (e *Emitter) Events() <-chan types.Event { return e.ch }

// ModelSelected announces the candidate the dispatcher settled on, with the
// selection or fallback reason code.
func (e *Emitter) ModelSelected(engineID, reason string) {
	e.emit(types.Event{
		Type:      types.EventModelSelected,
		RequestID: e.requestID,
		Engine:    engineID,
		Reason:    reason,
	})
}

// Token emits one ordered text delta.
func (e *Emitter) Token(tok string) {
	e.emit(types.Event{
		Type:      types.EventToken,
		RequestID: e.requestID,
		Token:     tok,
	})
}

// Complete emits the terminal success event and ends the sequence.
func (e *Emitter) Complete(sessionID string, res *types.GenerateResult) {
	e.terminal(types.Event{
		Type:      types.EventComplete,
		RequestID: e.requestID,
		SessionID: sessionID,
		Result:    res,
	})
}

// Error emits the terminal error event and ends the sequence.
func (e *Emitter) Error(code, msg string) {
	e.terminal(types.Event{
		Type:      types.EventError,
		RequestID: e.requestID,
		Code:      code,
		Error:     msg,
	})
}

// emit and terminal hold the mutex across the send so a concurrent terminal
// can never race a send onto a closed channel. Consumers do not touch the
// mutex, so a blocked send only serializes producers.
func (e *Emitter) emit(ev types.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.ch <- ev
}

func (e *Emitter) terminal(ev types.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.done = true
	e.ch <- ev
	close(e.ch)
}
