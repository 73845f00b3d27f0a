package webgpu

import (
	"context"
	"strings"
	"sync"
	"time"

	"chat-ai-orchestrator/internal/domain/model"
)

var _ Engine = (*SimEngine)(nil)

// SimEngine stands in for a real GPU runtime: it "downloads" with stepped
// progress and generates a deterministic reply from the last user message.
type SimEngine struct {
	mu         sync.Mutex
	hasGPU     bool
	missing    string
	stepDelay  time.Duration
	generesult func(history []model.Message) string

	// Test hooks for injected generation faults.
	failAfter int
	failWith  error
}

type SimEngineOption func(*SimEngine)

func WithGPU(present bool, missing string) SimEngineOption {
	return func(e *SimEngine) { e.hasGPU = present; e.missing = missing }
}

func WithStepDelay(d time.Duration) SimEngineOption {
	return func(e *SimEngine) { e.stepDelay = d }
}

func NewSimEngine(opts ...SimEngineOption) *SimEngine {
	e := &SimEngine{
		hasGPU: true,
		generesult: func(history []model.Message) string {
			for i := len(history) - 1; i >= 0; i-- {
				if history[i].Role == model.RoleUser {
					return "Generated reply to: " + history[i].Content
				}
			}
			return "Hello from the GPU runtime."
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// FailGeneration makes subsequent Generate calls fail with err after
// emitting n deltas. Passing a nil err clears the hook.
func (e *SimEngine) FailGeneration(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAfter = n
	e.failWith = err
}

func (e *SimEngine) DetectGPU(ctx context.Context) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasGPU, e.missing
}

func (e *SimEngine) SetGPU(present bool, missing string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasGPU = present
	e.missing = missing
}

func (e *SimEngine) Load(ctx context.Context, spec model.ModelSpec, report func(model.Progress)) (LoadedModel, error) {
	total := int64(spec.VRAMMB) * 1024 * 1024
	for _, pct := range []int{0, 25, 50, 75, 100} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report(model.Progress{
			Phase:       model.PhaseDownloading,
			Percentage:  pct,
			LoadedBytes: total * int64(pct) / 100,
			TotalBytes:  total,
			CurrentFile: spec.ID,
		})
		if e.stepDelay > 0 {
			select {
			case <-time.After(e.stepDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	report(model.Progress{Phase: model.PhaseLoading, Percentage: 100, CurrentFile: spec.ID})
	return &simModel{engine: e, spec: spec}, nil
}

type simModel struct {
	engine *SimEngine
	spec   model.ModelSpec

	mu       sync.Mutex
	unloaded bool
}

func (m *simModel) Generate(ctx context.Context, history []model.Message, cfg model.SessionConfig, emit func(string) error) error {
	m.mu.Lock()
	unloaded := m.unloaded
	m.mu.Unlock()
	if unloaded {
		return context.Canceled
	}

	m.engine.mu.Lock()
	reply := m.engine.generesult(history)
	failAfter, failWith := m.engine.failAfter, m.engine.failWith
	m.engine.mu.Unlock()

	words := strings.Split(reply, " ")
	for i, w := range words {
		if failWith != nil && i >= failAfter {
			return failWith
		}
		tok := w
		if i > 0 {
			tok = " " + w
		}
		if err := emit(tok); err != nil {
			return err
		}
	}
	return nil
}

func (m *simModel) Unload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloaded = true
	return nil
}
