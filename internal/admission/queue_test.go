package admission

import (
	"context"
	"testing"
	"time"

	"gend/internal/engine"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustEnqueue(t *testing.T, q *Queue, engineID string, conc int, id string) *Ticket {
	t.Helper()
	tk, err := q.Enqueue(engineID, conc, id)
	if err != nil {
		t.Fatalf("enqueue %s: %v", id, err)
	}
	return tk
}

func TestImmediateAdmitWhenSlotFree(t *testing.T) {
	q := New(Config{})
	tk := mustEnqueue(t, q, "eng", 1, "r1")
	if err := tk.Await(testCtx(t)); err != nil {
		t.Fatalf("await: %v", err)
	}
	pos, state, ok := q.Position("r1")
	if !ok || state != "running" || pos != 0 {
		t.Fatalf("got pos=%d state=%q ok=%v, want running at 0", pos, state, ok)
	}
	tk.Release()
	if _, _, ok := q.Position("r1"); ok {
		t.Fatalf("released entry still indexed")
	}
}

func TestFIFOOrderAndPositions(t *testing.T) {
	q := New(Config{})
	t1 := mustEnqueue(t, q, "eng", 1, "r1")
	t2 := mustEnqueue(t, q, "eng", 1, "r2")
	t3 := mustEnqueue(t, q, "eng", 1, "r3")
	if err := t1.Await(testCtx(t)); err != nil {
		t.Fatalf("await r1: %v", err)
	}
	if pos, state, _ := q.Position("r2"); state != "waiting" || pos != 0 {
		t.Fatalf("r2 pos=%d state=%q, want waiting at 0", pos, state)
	}
	if pos, _, _ := q.Position("r3"); pos != 1 {
		t.Fatalf("r3 pos=%d, want 1", pos)
	}
	t1.Release()
	if err := t2.Await(testCtx(t)); err != nil {
		t.Fatalf("await r2: %v", err)
	}
	// r3 moved up after r2 was admitted.
	if pos, state, _ := q.Position("r3"); state != "waiting" || pos != 0 {
		t.Fatalf("r3 pos=%d state=%q, want waiting at 0", pos, state)
	}
	t2.Release()
	if err := t3.Await(testCtx(t)); err != nil {
		t.Fatalf("await r3: %v", err)
	}
	t3.Release()
}

func TestConcurrencySlots(t *testing.T) {
	q := New(Config{})
	t1 := mustEnqueue(t, q, "eng", 2, "r1")
	t2 := mustEnqueue(t, q, "eng", 2, "r2")
	t3 := mustEnqueue(t, q, "eng", 2, "r3")
	if err := t1.Await(testCtx(t)); err != nil {
		t.Fatalf("await r1: %v", err)
	}
	if err := t2.Await(testCtx(t)); err != nil {
		t.Fatalf("await r2: %v", err)
	}
	if _, state, _ := q.Position("r3"); state != "waiting" {
		t.Fatalf("r3 state=%q, want waiting behind 2 slots", state)
	}
	w, r := q.Depth("eng")
	if w != 1 || r != 2 {
		t.Fatalf("depth=(%d,%d), want (1,2)", w, r)
	}
	t1.Release()
	if err := t3.Await(testCtx(t)); err != nil {
		t.Fatalf("await r3: %v", err)
	}
	t2.Release()
	t3.Release()
}

func TestQueueFullFailFast(t *testing.T) {
	q := New(Config{MaxDepth: 2})
	tk := mustEnqueue(t, q, "eng", 1, "running")
	if err := tk.Await(testCtx(t)); err != nil {
		t.Fatalf("await: %v", err)
	}
	mustEnqueue(t, q, "eng", 1, "w1")
	mustEnqueue(t, q, "eng", 1, "w2")
	_, err := q.Enqueue("eng", 1, "w3")
	if err == nil {
		t.Fatalf("expected queue full")
	}
	if !engine.IsKind(err, engine.QueueFull) {
		t.Fatalf("got %v, want classified queue_full", err)
	}
}

func TestDuplicateRequestID(t *testing.T) {
	q := New(Config{})
	mustEnqueue(t, q, "eng", 1, "r1")
	if _, err := q.Enqueue("eng", 1, "r1"); !IsDuplicateRequest(err) {
		t.Fatalf("got %v, want duplicate request error", err)
	}
	// A different engine does not help: ids are global.
	if _, err := q.Enqueue("other", 1, "r1"); !IsDuplicateRequest(err) {
		t.Fatalf("got %v, want duplicate request error", err)
	}
}

func TestCancelWaitingPreservesOrder(t *testing.T) {
	q := New(Config{})
	t1 := mustEnqueue(t, q, "eng", 1, "r1")
	mustEnqueue(t, q, "eng", 1, "r2")
	t3 := mustEnqueue(t, q, "eng", 1, "r3")
	if err := t1.Await(testCtx(t)); err != nil {
		t.Fatalf("await r1: %v", err)
	}
	if !q.Cancel("r2") {
		t.Fatalf("cancel r2 failed")
	}
	if pos, _, _ := q.Position("r3"); pos != 0 {
		t.Fatalf("r3 pos=%d after cancel ahead, want 0", pos)
	}
	t1.Release()
	if err := t3.Await(testCtx(t)); err != nil {
		t.Fatalf("await r3: %v", err)
	}
}

func TestCancelWaitingUnblocksAwait(t *testing.T) {
	q := New(Config{})
	t1 := mustEnqueue(t, q, "eng", 1, "r1")
	t2 := mustEnqueue(t, q, "eng", 1, "r2")
	if err := t1.Await(testCtx(t)); err != nil {
		t.Fatalf("await r1: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- t2.Await(context.Background()) }()
	q.Cancel("r2")
	select {
	case err := <-done:
		if !IsCancelled(err) {
			t.Fatalf("got %v, want cancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("await did not unblock on cancel")
	}
}

func TestCancelRunningFreesSlotAndFiresContext(t *testing.T) {
	q := New(Config{})
	t1 := mustEnqueue(t, q, "eng", 1, "r1")
	t2 := mustEnqueue(t, q, "eng", 1, "r2")
	if err := t1.Await(testCtx(t)); err != nil {
		t.Fatalf("await r1: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t1.Bind(cancel)
	if !q.Cancel("r1") {
		t.Fatalf("cancel r1 failed")
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("bound context not cancelled")
	}
	// Slot freed: r2 gets admitted without r1 releasing.
	if err := t2.Await(testCtx(t)); err != nil {
		t.Fatalf("await r2: %v", err)
	}
}

func TestCancelUnknownID(t *testing.T) {
	q := New(Config{})
	if q.Cancel("nope") {
		t.Fatalf("cancel of unknown id returned true")
	}
}

func TestAwaitContextExpiryRemovesEntry(t *testing.T) {
	q := New(Config{})
	t1 := mustEnqueue(t, q, "eng", 1, "r1")
	t2 := mustEnqueue(t, q, "eng", 1, "r2")
	if err := t1.Await(testCtx(t)); err != nil {
		t.Fatalf("await r1: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := t2.Await(ctx); err != context.DeadlineExceeded {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if _, _, ok := q.Position("r2"); ok {
		t.Fatalf("expired waiter still indexed")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	q := New(Config{})
	t1 := mustEnqueue(t, q, "eng", 1, "r1")
	if err := t1.Await(testCtx(t)); err != nil {
		t.Fatalf("await: %v", err)
	}
	t1.Release()
	t1.Release()
	if !q.Idle("eng") {
		t.Fatalf("engine not idle after release")
	}
}

func TestIdleProbe(t *testing.T) {
	q := New(Config{})
	if !q.Idle("eng") {
		t.Fatalf("empty engine should be idle")
	}
	tk := mustEnqueue(t, q, "eng", 1, "r1")
	if q.Idle("eng") {
		t.Fatalf("engine with running work reported idle")
	}
	if err := tk.Await(testCtx(t)); err != nil {
		t.Fatalf("await: %v", err)
	}
	tk.Release()
	if !q.Idle("eng") {
		t.Fatalf("drained engine should be idle")
	}
}
