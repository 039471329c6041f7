package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gend/internal/admission"
	"gend/internal/catalog"
	"gend/internal/engine"
	"gend/internal/session"
	"gend/pkg/types"
)

// scriptedEngine fails or succeeds per call according to its script.
type scriptedEngine struct {
	handle types.EngineHandle
	mu     sync.Mutex
	calls  int
	// script[i] is the error for call i; calls beyond the script succeed.
	script []error
	result engine.Result
	tokens []string
	// started, when set, receives before each call begins.
	started chan struct{}
	// gate, when set, holds each call until it receives a token.
	gate chan struct{}
	// block, when set, parks the call until ctx is done.
	block bool
}

func (e *scriptedEngine) Handle() types.EngineHandle { return e.handle }

func (e *scriptedEngine) Invoke(ctx context.Context, req engine.Request, onToken func(string) error) (engine.Result, error) {
	e.mu.Lock()
	call := e.calls
	e.calls++
	e.mu.Unlock()
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return engine.Result{}, ctx.Err()
		}
	}
	if e.block {
		<-ctx.Done()
		return engine.Result{}, ctx.Err()
	}
	if call < len(e.script) && e.script[call] != nil {
		return engine.Result{}, e.script[call]
	}
	for _, tok := range e.tokens {
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return engine.Result{}, err
			}
		}
	}
	res := e.result
	if res.FinishReason == "" {
		res.FinishReason = "stop"
	}
	return res, nil
}

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fixture struct {
	dispatcher *Dispatcher
	sessions   *session.Manager
	queue      *admission.Queue
}

func newFixture(t *testing.T, defaultEngine string, engines ...*scriptedEngine) *fixture {
	t.Helper()
	var handles []types.EngineHandle
	reg := engine.NewRegistry()
	for _, e := range engines {
		handles = append(handles, e.handle)
		reg.Register(e)
	}
	cat := catalog.New(handles...)
	q := admission.New(admission.Config{})
	sess := session.NewManager(session.Config{})
	d := New(Config{
		Catalog:       cat,
		Registry:      reg,
		Queue:         q,
		Sessions:      sess,
		Logger:        zerolog.Nop(),
		DefaultEngine: defaultEngine,
		CallTimeout:   5 * time.Second,
	})
	return &fixture{dispatcher: d, sessions: sess, queue: q}
}

func remoteHandle(id string, tier types.Tier) types.EngineHandle {
	return types.EngineHandle{
		ID: id, Kind: types.KindRemote, Modality: types.ModalityText,
		Tier: tier, MaxConcurrency: 2, Streaming: true,
	}
}

func collect(t *testing.T, ch <-chan types.Event) []types.Event {
	t.Helper()
	var out []types.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("event stream never terminated; got %+v", out)
		}
	}
}

func eventsOfType(evs []types.Event, typ string) []types.Event {
	var out []types.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestDispatchSuccessStreams(t *testing.T) {
	eng := &scriptedEngine{
		handle: remoteHandle("prem", types.TierPremium),
		result: engine.Result{Text: "hello world"},
		tokens: []string{"hello ", "world"},
	}
	f := newFixture(t, "", eng)

	ch, requestID, err := f.dispatcher.Dispatch(context.Background(),
		types.GenerateRequest{Input: "hi", Stream: true})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)

	selected := eventsOfType(evs, types.EventModelSelected)
	if len(selected) != 1 || selected[0].Engine != "prem" || selected[0].Reason != "premium" {
		t.Fatalf("model-selected: %+v", selected)
	}
	toks := eventsOfType(evs, types.EventToken)
	if len(toks) != 2 || toks[0].Token != "hello " {
		t.Fatalf("tokens: %+v", toks)
	}
	completes := eventsOfType(evs, types.EventComplete)
	if len(completes) != 1 {
		t.Fatalf("completes: %+v", completes)
	}
	done := completes[0]
	if done.Result == nil || done.Result.Text != "hello world" || done.Result.Engine != "prem" {
		t.Fatalf("complete result: %+v", done.Result)
	}
	if done.SessionID == "" {
		t.Fatalf("complete missing session id")
	}
	for _, ev := range evs {
		if ev.RequestID != requestID {
			t.Fatalf("event without request id: %+v", ev)
		}
	}

	// The exchange was committed to the session.
	s, ok := f.sessions.Get(done.SessionID)
	if !ok || len(s.Turns) != 2 {
		t.Fatalf("session after dispatch: ok=%v %+v", ok, s)
	}
	if s.Turns[0].Role != "user" || s.Turns[1].Content != "hello world" {
		t.Fatalf("committed turns: %+v", s.Turns)
	}
}

func TestNoTokensWhenStreamOff(t *testing.T) {
	eng := &scriptedEngine{
		handle: remoteHandle("prem", types.TierPremium),
		result: engine.Result{Text: "out"},
		tokens: []string{"o", "ut"},
	}
	f := newFixture(t, "", eng)
	ch, _, err := f.dispatcher.Dispatch(context.Background(), types.GenerateRequest{Input: "hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)
	if toks := eventsOfType(evs, types.EventToken); len(toks) != 0 {
		t.Fatalf("tokens emitted with streaming off: %+v", toks)
	}
}

func TestFallbackChainOnRetryableFailures(t *testing.T) {
	prem := &scriptedEngine{
		handle: remoteHandle("prem", types.TierPremium),
		script: []error{engine.Fail(engine.RateLimited, "prem", "slow down")},
	}
	std := &scriptedEngine{
		handle: remoteHandle("std", types.TierStandard),
		script: []error{engine.Fail(engine.Overloaded, "std", "busy")},
	}
	free := &scriptedEngine{
		handle: remoteHandle("free", types.TierFree),
		result: engine.Result{Text: "third time lucky"},
	}
	f := newFixture(t, "", prem, std, free)

	ch, _, err := f.dispatcher.Dispatch(context.Background(), types.GenerateRequest{Input: "hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)

	selected := eventsOfType(evs, types.EventModelSelected)
	if len(selected) != 3 {
		t.Fatalf("model-selected count=%d: %+v", len(selected), selected)
	}
	// First hop carries the plan reason; fallback hops carry the prior
	// failure's reason code.
	if selected[0].Engine != "prem" || selected[0].Reason != "premium" {
		t.Fatalf("hop 0: %+v", selected[0])
	}
	if selected[1].Engine != "std" || selected[1].Reason != "rate_limited" {
		t.Fatalf("hop 1: %+v", selected[1])
	}
	if selected[2].Engine != "free" || selected[2].Reason != "overloaded" {
		t.Fatalf("hop 2: %+v", selected[2])
	}
	completes := eventsOfType(evs, types.EventComplete)
	if len(completes) != 1 || completes[0].Result.Engine != "free" {
		t.Fatalf("completes: %+v", completes)
	}
	if len(eventsOfType(evs, types.EventError)) != 0 {
		t.Fatalf("unexpected error events: %+v", evs)
	}
}

func TestTerminalClientErrorNoFallback(t *testing.T) {
	prem := &scriptedEngine{
		handle: remoteHandle("prem", types.TierPremium),
		script: []error{engine.Fail(engine.InvalidRequest, "prem", "bad prompt")},
	}
	std := &scriptedEngine{
		handle: remoteHandle("std", types.TierStandard),
		result: engine.Result{Text: "never"},
	}
	f := newFixture(t, "", prem, std)

	ch, _, err := f.dispatcher.Dispatch(context.Background(), types.GenerateRequest{Input: "hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)

	if n := len(eventsOfType(evs, types.EventModelSelected)); n != 1 {
		t.Fatalf("model-selected count=%d, want 1 (no fallback on client error)", n)
	}
	errsEv := eventsOfType(evs, types.EventError)
	if len(errsEv) != 1 || errsEv[0].Code != "invalid_request" {
		t.Fatalf("error events: %+v", errsEv)
	}
	if std.callCount() != 0 {
		t.Fatalf("fallback engine was invoked %d times on a terminal error", std.callCount())
	}
}

func TestExplicitUnknownModel(t *testing.T) {
	f := newFixture(t, "", &scriptedEngine{handle: remoteHandle("real", types.TierStandard)})
	ch, _, err := f.dispatcher.Dispatch(context.Background(),
		types.GenerateRequest{Input: "hi", Model: "ghost"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)
	errsEv := eventsOfType(evs, types.EventError)
	if len(errsEv) != 1 || errsEv[0].Code != "not_found" {
		t.Fatalf("error events: %+v", errsEv)
	}
}

func TestExhaustedChain(t *testing.T) {
	prem := &scriptedEngine{
		handle: remoteHandle("prem", types.TierPremium),
		script: []error{engine.Fail(engine.RateLimited, "prem", "429")},
	}
	std := &scriptedEngine{
		handle: remoteHandle("std", types.TierStandard),
		script: []error{engine.Fail(engine.QuotaExceeded, "std", "402")},
	}
	f := newFixture(t, "", prem, std)

	ch, _, err := f.dispatcher.Dispatch(context.Background(), types.GenerateRequest{Input: "hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)
	errsEv := eventsOfType(evs, types.EventError)
	if len(errsEv) != 1 || errsEv[0].Code != "no_engine_available" {
		t.Fatalf("error events: %+v", errsEv)
	}
}

func TestEmptyPlan(t *testing.T) {
	f := newFixture(t, "", &scriptedEngine{handle: remoteHandle("text-only", types.TierStandard)})
	ch, _, err := f.dispatcher.Dispatch(context.Background(),
		types.GenerateRequest{Input: "hi", Modality: types.Modality3D})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)
	errsEv := eventsOfType(evs, types.EventError)
	if len(errsEv) != 1 || errsEv[0].Code != "no_engine_available" {
		t.Fatalf("error events: %+v", errsEv)
	}
}

func TestEmptyInputSyncError(t *testing.T) {
	f := newFixture(t, "", &scriptedEngine{handle: remoteHandle("e", types.TierStandard)})
	_, _, err := f.dispatcher.Dispatch(context.Background(), types.GenerateRequest{Input: "  "})
	if !IsEmptyInput(err) {
		t.Fatalf("got %v, want empty-input error", err)
	}
}

func TestCancelInFlight(t *testing.T) {
	eng := &scriptedEngine{
		handle:  remoteHandle("prem", types.TierPremium),
		started: make(chan struct{}, 1),
		block:   true,
	}
	f := newFixture(t, "", eng)

	ch, requestID, err := f.dispatcher.Dispatch(context.Background(), types.GenerateRequest{Input: "hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	<-eng.started
	if !f.dispatcher.Cancel(requestID) {
		t.Fatalf("cancel returned false for in-flight request")
	}
	evs := collect(t, ch)
	errsEv := eventsOfType(evs, types.EventError)
	if len(errsEv) != 1 || errsEv[0].Code != "cancelled" {
		t.Fatalf("error events: %+v", errsEv)
	}
	if f.dispatcher.Cancel(requestID) {
		t.Fatalf("cancel of finished request returned true")
	}
}

func TestQueueStatusWhileRunning(t *testing.T) {
	eng := &scriptedEngine{
		handle:  remoteHandle("prem", types.TierPremium),
		started: make(chan struct{}, 1),
		block:   true,
	}
	f := newFixture(t, "", eng)

	_, requestID, err := f.dispatcher.Dispatch(context.Background(), types.GenerateRequest{Input: "hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	<-eng.started
	qs, ok := f.dispatcher.QueueStatus(requestID)
	if !ok || qs.State != "running" || qs.Position != 0 || qs.Engine != "prem" {
		t.Fatalf("queue status: ok=%v %+v", ok, qs)
	}
	f.dispatcher.Cancel(requestID)
	if _, ok := f.dispatcher.QueueStatus("unknown"); ok {
		t.Fatalf("queue status for unknown id")
	}
}

func TestRegenerateReplaysLastUserTurn(t *testing.T) {
	eng := &scriptedEngine{
		handle: remoteHandle("prem", types.TierPremium),
		result: engine.Result{Text: "first answer"},
	}
	f := newFixture(t, "", eng)
	ctx := context.Background()

	ch, _, err := f.dispatcher.Dispatch(ctx, types.GenerateRequest{Input: "a question"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)
	sid := eventsOfType(evs, types.EventComplete)[0].SessionID

	eng.result = engine.Result{Text: "second answer"}
	ch, _, err = f.dispatcher.Regenerate(ctx, sid, types.GenerateRequest{})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	evs = collect(t, ch)
	completes := eventsOfType(evs, types.EventComplete)
	if len(completes) != 1 || completes[0].Result.Text != "second answer" {
		t.Fatalf("regen completes: %+v", completes)
	}

	s, _ := f.sessions.Get(sid)
	if len(s.Turns) != 2 {
		t.Fatalf("turns after regen=%d, want 2 (replaced, not appended): %+v", len(s.Turns), s.Turns)
	}
	if s.Turns[1].Content != "second answer" {
		t.Fatalf("assistant turn: %+v", s.Turns[1])
	}
	if eng.callCount() != 2 {
		t.Fatalf("engine calls=%d, want 2", eng.callCount())
	}
}

func TestRegenerateWaitsForInFlightDispatch(t *testing.T) {
	eng := &scriptedEngine{
		handle:  remoteHandle("prem", types.TierPremium),
		result:  engine.Result{Text: "answer"},
		started: make(chan struct{}, 4),
		gate:    make(chan struct{}, 4),
	}
	f := newFixture(t, "", eng)
	ctx := context.Background()

	// Seed the session with one full exchange.
	eng.gate <- struct{}{}
	ch, _, err := f.dispatcher.Dispatch(ctx, types.GenerateRequest{Input: "a question"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)
	sid := eventsOfType(evs, types.EventComplete)[0].SessionID
	<-eng.started

	// Park a second dispatch mid-call so it holds the session's exchange.
	ch2, _, err := f.dispatcher.Dispatch(ctx, types.GenerateRequest{Input: "another question", SessionID: sid})
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	<-eng.started

	regenErr := make(chan error, 1)
	regenCh := make(chan (<-chan types.Event), 1)
	go func() {
		ch, _, err := f.dispatcher.Regenerate(ctx, sid, types.GenerateRequest{})
		regenErr <- err
		regenCh <- ch
	}()

	// While the dispatch holds the exchange the transcript must stay
	// untouched: the drop waits for the slot instead of racing the commit.
	time.Sleep(50 * time.Millisecond)
	s, _ := f.sessions.Get(sid)
	if len(s.Turns) != 2 || s.Turns[1].Content != "answer" {
		t.Fatalf("transcript mutated during in-flight dispatch: %+v", s.Turns)
	}
	select {
	case err := <-regenErr:
		t.Fatalf("regenerate returned before the exchange was free: %v", err)
	default:
	}

	// Release the parked dispatch, then the regenerate replay.
	eng.gate <- struct{}{}
	collect(t, ch2)
	<-eng.started
	eng.gate <- struct{}{}
	if err := <-regenErr; err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	collect(t, <-regenCh)

	s, _ = f.sessions.Get(sid)
	if len(s.Turns) != 4 {
		t.Fatalf("turns after regen=%d, want 4: %+v", len(s.Turns), s.Turns)
	}
	if s.Turns[2].Content != "another question" || s.Turns[3].Role != "assistant" {
		t.Fatalf("final transcript: %+v", s.Turns)
	}
	if eng.callCount() != 3 {
		t.Fatalf("engine calls=%d, want 3", eng.callCount())
	}
}

func TestRegenerateEmptySessionFails(t *testing.T) {
	f := newFixture(t, "", &scriptedEngine{handle: remoteHandle("e", types.TierStandard)})
	ctx := context.Background()
	sid, err := f.sessions.Begin(ctx, "")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, _, err = f.dispatcher.Regenerate(ctx, sid, types.GenerateRequest{})
	if !session.IsNoUserTurn(err) {
		t.Fatalf("got %v, want no-user-turn", err)
	}
}

func TestCallTimeoutIsRetryable(t *testing.T) {
	slow := &scriptedEngine{
		handle: remoteHandle("prem", types.TierPremium),
		block:  true,
	}
	fast := &scriptedEngine{
		handle: remoteHandle("std", types.TierStandard),
		result: engine.Result{Text: "fallback won"},
	}
	var handles []types.EngineHandle
	reg := engine.NewRegistry()
	for _, e := range []*scriptedEngine{slow, fast} {
		handles = append(handles, e.handle)
		reg.Register(e)
	}
	d := New(Config{
		Catalog:     catalog.New(handles...),
		Registry:    reg,
		Queue:       admission.New(admission.Config{}),
		Sessions:    session.NewManager(session.Config{}),
		Logger:      zerolog.Nop(),
		CallTimeout: 50 * time.Millisecond,
	})

	ch, _, err := d.Dispatch(context.Background(), types.GenerateRequest{Input: "hi"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	evs := collect(t, ch)
	selected := eventsOfType(evs, types.EventModelSelected)
	if len(selected) != 2 || selected[1].Reason != "timeout" {
		t.Fatalf("model-selected: %+v", selected)
	}
	completes := eventsOfType(evs, types.EventComplete)
	if len(completes) != 1 || completes[0].Result.Text != "fallback won" {
		t.Fatalf("completes: %+v", completes)
	}
}
