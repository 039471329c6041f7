// Package routing picks candidate engines for a request, invokes them
// through the admission queue, and on qualifying failure re-routes to the
// next candidate in the fallback chain. Outcomes fall into three buckets:
// terminal success, retryable-with-fallback (rate limiting, quota, overload,
// timeout, capacity exceeded, queue full, load failure) and terminal-client
// (invalid request, not found, auth) which surfaces immediately — falling
// back on a client error would mask it.
package routing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gend/internal/admission"
	"gend/internal/catalog"
	"gend/internal/engine"
	"gend/internal/session"
	"gend/internal/stream"
	"gend/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultCallTimeout = 120 * time.Second
	defaultEventBuf    = 16
)

// Config encapsulates dispatcher wiring.
type Config struct {
	Catalog  *catalog.Catalog
	Registry *engine.Registry
	Queue    *admission.Queue
	Sessions *session.Manager
	Logger   zerolog.Logger
	// DefaultEngine is preferred on plan ties (usually the pinned engine).
	DefaultEngine string
	// CallTimeout bounds each engine call; expiry is a retryable failure.
	CallTimeout time.Duration
}

type Dispatcher struct {
	catalog       *catalog.Catalog
	registry      *engine.Registry
	queue         *admission.Queue
	sessions      *session.Manager
	log           zerolog.Logger
	defaultEngine string
	callTimeout   time.Duration

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		catalog:       cfg.Catalog,
		registry:      cfg.Registry,
		queue:         cfg.Queue,
		sessions:      cfg.Sessions,
		log:           cfg.Logger,
		defaultEngine: cfg.DefaultEngine,
		callTimeout:   cfg.CallTimeout,
		inflight:      make(map[string]context.CancelFunc),
	}
	if d.callTimeout <= 0 {
		d.callTimeout = defaultCallTimeout
	}
	return d
}

// Dispatch is the public entry point: it resolves the session, builds the
// routing plan, and returns the lazily-produced event sequence. Validation
// and session-contract errors are returned synchronously; everything else is
// delivered as events.
func (d *Dispatcher) Dispatch(ctx context.Context, req types.GenerateRequest) (<-chan types.Event, string, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, "", errEmptyInput{}
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	sid, err := d.sessions.Begin(ctx, req.SessionID)
	if err != nil {
		return nil, "", err
	}
	em := stream.NewEmitter(requestID, defaultEventBuf)
	go d.run(ctx, req, requestID, sid, em, types.Turn{}, false, nil)
	return em.Events(), requestID, nil
}

// Regenerate removes the most recent assistant turn of a session and replays
// the preceding user turn through the same dispatch path. On success the
// replacement assistant turn is committed, not appended alongside.
func (d *Dispatcher) Regenerate(ctx context.Context, sessionID string, req types.GenerateRequest) (<-chan types.Event, string, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	sid, err := d.sessions.Begin(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	// Take the exchange slot before touching the transcript: the drop must
	// not interleave with an in-flight dispatch on the same session. The
	// slot is handed to run, which releases it when the replay finishes.
	release, err := d.sessions.AcquireExchange(ctx, sid)
	if err != nil {
		return nil, "", err
	}
	user, err := d.sessions.Regenerate(ctx, sid)
	if err != nil {
		release()
		return nil, "", err
	}
	req.Input = user.Content
	if req.StateTokens == nil {
		req.StateTokens = user.StateTokens
	}
	em := stream.NewEmitter(requestID, defaultEventBuf)
	go d.run(ctx, req, requestID, sid, em, user, true, release)
	return em.Events(), requestID, nil
}

// Cancel cancels a waiting-or-running dispatch. Returns false for unknown
// request ids.
func (d *Dispatcher) Cancel(requestID string) bool {
	d.mu.Lock()
	cancel, ok := d.inflight[requestID]
	d.mu.Unlock()
	// Cancel the dispatch context before the queue entry so a running call
	// observes a cancelled dispatch, not a per-call timeout.
	if ok {
		cancel()
	}
	queued := d.queue.Cancel(requestID)
	return ok || queued
}

// QueueStatus reports the wait position of a pending dispatch.
func (d *Dispatcher) QueueStatus(requestID string) (types.QueueStatus, bool) {
	pos, state, ok := d.queue.Position(requestID)
	if !ok {
		return types.QueueStatus{}, false
	}
	engineID, _ := d.queue.Engine(requestID)
	return types.QueueStatus{
		RequestID: requestID,
		Engine:    engineID,
		Position:  pos,
		State:     state,
	}, true
}

type hop struct {
	engineID string
	reason   string
}

// run drives the fallback chain for one request. A non-nil release means the
// caller already holds the session exchange slot and run owns releasing it.
func (d *Dispatcher) run(ctx context.Context, req types.GenerateRequest, requestID, sid string, em *stream.Emitter, regenUser types.Turn, regen bool, release func()) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.inflight[requestID] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, requestID)
		d.mu.Unlock()
	}()

	if release == nil {
		var err error
		release, err = d.sessions.AcquireExchange(dctx, sid)
		if err != nil {
			em.Error("cancelled", err.Error())
			return
		}
	}
	defer release()

	turns, prevTokens := d.sessions.ContextFor(sid)
	stateTokens := prevTokens
	if len(req.StateTokens) > 0 {
		stateTokens = req.StateTokens
	}

	plan, err := BuildPlan(d.catalog.ListEngines(req.Modality), req, d.defaultEngine)
	if err != nil {
		em.Error(string(engine.InvalidRequest), err.Error())
		return
	}
	if len(plan) == 0 {
		em.Error("no_engine_available", "no engine matches the selection policy")
		return
	}

	engReq := engine.Request{
		RequestID:   requestID,
		Prompt:      req.Input,
		Turns:       turns,
		StateTokens: stateTokens,
		Params: engine.Params{
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			Stop:        req.Stop,
			Seed:        req.Seed,
			Stream:      req.Stream,
		},
	}

	var trace []hop
	lastReason := ""
	for i, cand := range plan {
		reason := cand.Reason
		if i > 0 {
			reason = lastReason
			fallbacksTotal.WithLabelValues(reason).Inc()
		}
		em.ModelSelected(cand.EngineID, reason)
		trace = append(trace, hop{engineID: cand.EngineID, reason: reason})

		res, err := d.tryCandidate(dctx, cand.EngineID, requestID, engReq, req, em)
		if err == nil {
			d.commit(dctx, sid, req, regenUser, regen, res)
			dispatchTotal.WithLabelValues("complete").Inc()
			em.Complete(sid, res)
			d.logTrace(requestID, trace, "complete", "")
			return
		}
		if dctx.Err() != nil || admission.IsCancelled(err) {
			dispatchTotal.WithLabelValues("cancelled").Inc()
			em.Error("cancelled", "dispatch cancelled")
			d.logTrace(requestID, trace, "cancelled", "")
			return
		}
		kind, msg := classify(err, cand.EngineID)
		if !engine.Retryable(kind) {
			dispatchTotal.WithLabelValues("error").Inc()
			em.Error(string(kind), msg)
			d.logTrace(requestID, trace, "error", string(kind))
			return
		}
		lastReason = string(kind)
	}
	dispatchTotal.WithLabelValues("exhausted").Inc()
	em.Error("no_engine_available", "fallback chain exhausted, last: "+lastReason)
	d.logTrace(requestID, trace, "exhausted", lastReason)
}

// tryCandidate runs one candidate through resolution, admission, and
// invocation. All errors come back classified.
func (d *Dispatcher) tryCandidate(ctx context.Context, engineID, requestID string, engReq engine.Request, req types.GenerateRequest, em *stream.Emitter) (*types.GenerateResult, error) {
	handle, ok := d.catalog.GetEngineHandle(engineID)
	if !ok {
		return nil, engine.Fail(engine.NotFound, engineID, "not in catalog")
	}
	eng, ok := d.registry.Lookup(engineID)
	if !ok {
		// Cataloged but not runnable (artifact missing): degrade into
		// fallback rather than a client error.
		return nil, engine.Fail(engine.LoadFailed, engineID, "no runnable engine registered")
	}

	ticket, err := d.queue.Enqueue(engineID, handle.MaxConcurrency, requestID)
	if err != nil {
		return nil, err
	}
	if err := ticket.Await(ctx); err != nil {
		return nil, err
	}
	defer ticket.Release()

	cctx, ccancel := context.WithTimeout(ctx, d.callTimeout)
	defer ccancel()
	ticket.Bind(ccancel)

	var onToken func(string) error
	if req.Stream && handle.Streaming {
		onToken = func(tok string) error {
			em.Token(tok)
			return nil
		}
	}

	res, err := eng.Invoke(cctx, engReq, onToken)
	if err != nil {
		if cctx.Err() != nil && ctx.Err() == nil {
			// The per-call deadline fired (or the running entry was
			// cancelled); a cancelled dispatch is caught by the caller via
			// the parent context.
			return nil, engine.Fail(engine.Timeout, engineID, "engine call timed out")
		}
		return nil, err
	}
	return &types.GenerateResult{
		Engine:       engineID,
		Text:         res.Text,
		Media:        res.Media,
		StateTokens:  res.StateTokens,
		Usage:        res.Usage,
		FinishReason: res.FinishReason,
	}, nil
}

func (d *Dispatcher) commit(ctx context.Context, sid string, req types.GenerateRequest, regenUser types.Turn, regen bool, res *types.GenerateResult) {
	assistant := types.Turn{
		Role:        "assistant",
		Content:     res.Text,
		Media:       res.Media,
		StateTokens: res.StateTokens,
	}
	var err error
	if regen {
		err = d.sessions.CommitAssistant(ctx, sid, assistant)
	} else {
		user := types.Turn{Role: "user", Content: req.Input, StateTokens: req.StateTokens}
		err = d.sessions.CommitExchange(ctx, sid, user, assistant)
	}
	if err != nil {
		d.log.Error().Err(err).Str("session_id", sid).Msg("session commit failed")
	}
}

// classify normalizes any candidate error into the fixed failure taxonomy.
func classify(err error, engineID string) (engine.FailureKind, string) {
	if f, ok := engine.AsFailure(err); ok {
		return f.Kind, f.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return engine.Timeout, "engine call timed out"
	}
	// Unclassified errors degrade into fallback; adapters are expected to
	// classify, so this is a safety net, not a path.
	return engine.Overloaded, err.Error()
}

// logTrace records the full fallback trace for post-hoc debugging of
// routing decisions.
func (d *Dispatcher) logTrace(requestID string, trace []hop, outcome, lastReason string) {
	arr := zerolog.Arr()
	for _, h := range trace {
		arr.Str(h.engineID + "(" + h.reason + ")")
	}
	ev := d.log.Info().Str("request_id", requestID).Str("outcome", outcome).Array("trace", arr)
	if lastReason != "" {
		ev = ev.Str("last_reason", lastReason)
	}
	ev.Msg("dispatch end")
}
