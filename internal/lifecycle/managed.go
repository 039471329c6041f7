package lifecycle

import (
	"context"

	"gend/internal/engine"
	"gend/pkg/types"
)

// Engine wraps a local handle as an engine.Engine whose Invoke ensures
// residency, marks the instance busy for the duration of the call, and
// classifies runtime errors. Registered alongside remote engines so the
// dispatcher never distinguishes engine kind.
func (m *Manager) Engine(handle types.EngineHandle) engine.Engine {
	return &managedEngine{handle: handle, mgr: m}
}

type managedEngine struct {
	handle types.EngineHandle
	mgr    *Manager
}

func (e *managedEngine) Handle() types.EngineHandle { return e.handle }

func (e *managedEngine) Invoke(ctx context.Context, req engine.Request, onToken func(string) error) (engine.Result, error) {
	sess, err := e.mgr.EnsureLoaded(ctx, e.handle.ID)
	if err != nil {
		return engine.Result{}, err
	}
	e.mgr.MarkBusy(e.handle.ID)
	defer e.mgr.Release(e.handle.ID)

	res, err := sess.Generate(ctx, req, onToken)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return engine.Result{}, ctx.Err()
	}
	if _, ok := engine.AsFailure(err); ok {
		return engine.Result{}, err
	}
	// A local generation error degrades into fallback like any other
	// retryable failure; the instance itself stays resident.
	return engine.Result{}, engine.Wrap(engine.Overloaded, e.handle.ID, err)
}
