//go:build !llama

package engine

import (
	"context"

	"gend/pkg/types"
)

// llamaBuilt indicates this binary was compiled without real llama support.
var llamaBuilt = false

// NewLlamaRuntime returns a stub adapter when built without -tags=llama.
// Loads fail with a classified LoadFailed so routing falls back to remote
// engines instead of surfacing a raw error.
func NewLlamaRuntime(ctxSize, threads int) RuntimeAdapter {
	return llamaStub{}
}

type llamaStub struct{}

func (llamaStub) Load(ctx context.Context, handle types.EngineHandle) (RuntimeSession, error) {
	return nil, Fail(LoadFailed, handle.ID, "built without llama support (rebuild with -tags=llama)")
}
