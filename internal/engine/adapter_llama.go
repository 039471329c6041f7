//go:build llama

package engine

// cgo link directives for the in-process llama runtime.
// - rpath $ORIGIN lets the loader find libllama.so next to the built binary.
// - -L${SRCDIR}/../../bin lets the linker find it when building with -tags=llama.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"

	"gend/pkg/types"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaRuntime holds global config used to initialize model instances.
type llamaRuntime struct {
	ctxSize int
	threads int
}

// NewLlamaRuntime returns the in-process llama.cpp runtime adapter.
func NewLlamaRuntime(ctxSize, threads int) RuntimeAdapter {
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	return &llamaRuntime{ctxSize: ctxSize, threads: threads}
}

// llamaSession owns one loaded model.
type llamaSession struct {
	model   *llama.LLama
	threads int
}

func (a *llamaRuntime) Load(ctx context.Context, handle types.EngineHandle) (RuntimeSession, error) {
	if strings.TrimSpace(handle.ArtifactPath) == "" {
		return nil, Fail(LoadFailed, handle.ID, "artifact path is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := llama.New(handle.ArtifactPath, llama.SetContext(a.ctxSize))
	if err != nil {
		return nil, Wrap(LoadFailed, handle.ID, err)
	}
	return &llamaSession{model: m, threads: a.threads}, nil
}

func (s *llamaSession) Generate(ctx context.Context, req Request, onToken func(string) error) (Result, error) {
	if s.model == nil {
		return Result{}, errors.New("llama model not initialized")
	}

	var b strings.Builder
	// Bridge token streaming to onToken and respect cancellation.
	s.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		b.WriteString(tok)
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return false
			}
		}
		return true
	})

	var opts []llama.PredictOption
	if req.Params.MaxTokens > 0 {
		opts = append(opts, llama.SetTokens(req.Params.MaxTokens))
	}
	if req.Params.Temperature > 0 {
		opts = append(opts, llama.SetTemperature(req.Params.Temperature))
	}
	if req.Params.TopP > 0 {
		opts = append(opts, llama.SetTopP(req.Params.TopP))
	}
	if len(req.Params.Stop) > 0 {
		opts = append(opts, llama.SetStopWords(req.Params.Stop...))
	}
	if req.Params.Seed != 0 {
		opts = append(opts, llama.SetSeed(int(req.Params.Seed)))
	}
	if s.threads > 0 {
		opts = append(opts, llama.SetThreads(s.threads))
	}

	if _, err := s.model.Predict(flattenPrompt(req), opts...); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	return Result{Text: b.String(), FinishReason: "stop"}, nil
}

func (s *llamaSession) Close() error {
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}
