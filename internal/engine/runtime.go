package engine

import (
	"context"

	"gend/pkg/types"
)

// RuntimeAdapter abstracts the local model runtime used by the lifecycle
// manager. Concrete implementations (e.g. llama.cpp) satisfy this interface;
// the manager never depends on a specific backend.
type RuntimeAdapter interface {
	// Load instantiates the runtime for the given handle. It is called at
	// most once per resident engine and may be slow; it must honor ctx.
	Load(ctx context.Context, handle types.EngineHandle) (RuntimeSession, error)
}

// RuntimeSession is one resident model instance. Generate is serialized by
// the admission queue; implementations need not be safe for concurrent
// Generate calls beyond the handle's MaxConcurrency.
type RuntimeSession interface {
	Generate(ctx context.Context, req Request, onToken func(string) error) (Result, error)
	// Close releases the instance's memory. Called during eviction/unload.
	Close() error
}

// Remote wraps a provider adapter (the thin per-provider wire layer, outside
// this module) as an Engine. The adapter's errors are expected to already be
// classified; anything unclassified is normalized to Overloaded so a flaky
// provider degrades into fallback rather than a user-facing failure.
type Remote struct {
	handle types.EngineHandle
	invoke func(ctx context.Context, req Request, onToken func(string) error) (Result, error)
}

// NewRemote builds a remote engine from a handle and its adapter function.
func NewRemote(handle types.EngineHandle, invoke func(ctx context.Context, req Request, onToken func(string) error) (Result, error)) *Remote {
	return &Remote{handle: handle, invoke: invoke}
}

func (r *Remote) Handle() types.EngineHandle { return r.handle }

func (r *Remote) Invoke(ctx context.Context, req Request, onToken func(string) error) (Result, error) {
	res, err := r.invoke(ctx, req, onToken)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if _, ok := AsFailure(err); ok {
		return Result{}, err
	}
	return Result{}, Wrap(Overloaded, r.handle.ID, err)
}
