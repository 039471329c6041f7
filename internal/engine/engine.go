// Package engine defines the single capability surface every backing compute
// engine exposes to the dispatcher, the fixed failure classification produced
// at the adapter boundary, and the registry mapping engine ids to runnable
// values. Remote API engines and lifecycle-managed local runtimes both hide
// behind the Engine interface so call sites never type-check engine kind.
package engine

import (
	"context"

	"gend/pkg/types"
)

// Request is the engine-facing view of one generation call: the assembled
// session context plus generation parameters.
type Request struct {
	RequestID   string
	Prompt      string
	Turns       []types.Turn
	StateTokens map[string]string
	Params      Params
}

// Params captures generation parameters passed to the engine.
type Params struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
	Seed        int64
	Stream      bool
}

// Result summarizes the generation after streaming.
type Result struct {
	Text         string
	Media        []types.MediaRef
	StateTokens  map[string]string
	Usage        types.Usage
	FinishReason string
}

// Engine is one runnable unit. Invoke streams incremental text deltas through
// onToken (which may be nil for non-streaming calls) and returns the final
// structured result. Implementations must return promptly when ctx is
// cancelled and must surface errors as classified *Failure values.
type Engine interface {
	Handle() types.EngineHandle
	Invoke(ctx context.Context, req Request, onToken func(string) error) (Result, error)
}
