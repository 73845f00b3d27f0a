package webgpu

import (
	"context"

	"chat-ai-orchestrator/internal/domain/model"
)

// Engine is the port for the GPU-accelerated in-process model runtime.
type Engine interface {
	// DetectGPU reports whether a GPU compute interface is present. The
	// second value names the missing capability when it is not.
	DetectGPU(ctx context.Context) (bool, string)

	// Load downloads (if needed) and loads the weights for spec, calling
	// report as the phases advance. The returned model is ready for
	// generation.
	Load(ctx context.Context, spec model.ModelSpec, report func(model.Progress)) (LoadedModel, error)
}

// LoadedModel is one loaded set of weights.
type LoadedModel interface {
	// Generate produces a reply to the conversation, pushing deltas
	// through emit. emit's error must be propagated (cancellation).
	// A lost GPU context surfaces as an error wrapping
	// domain.ErrGPUContextLost.
	Generate(ctx context.Context, history []model.Message, cfg model.SessionConfig, emit func(delta string) error) error

	Unload(ctx context.Context) error
}
