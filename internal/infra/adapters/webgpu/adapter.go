package webgpu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/model"
	"chat-ai-orchestrator/internal/domain/ports/provider"
	"chat-ai-orchestrator/internal/domain/ports/repository"
	"chat-ai-orchestrator/internal/infra/metrics"
)

var (
	_ provider.ModelProvider = (*Adapter)(nil)
	_ provider.ModelSwitcher = (*Adapter)(nil)
)

type sessionState struct {
	cfg        model.SessionConfig
	history    []model.Message
	generation int
}

// Adapter exposes a GPU-accelerated runtime with a downloadable model
// catalog behind the session contract. Switching models invalidates every
// session created before the switch.
type Adapter struct {
	engine       Engine
	settings     repository.SettingsStore
	log          *zerolog.Logger
	defaultModel string

	mu          sync.Mutex
	initialized bool
	current     LoadedModel
	currentID   string
	generation  int
	sessions    map[string]*sessionState

	progMu   sync.Mutex
	progress *model.Progress
}

func NewAdapter(engine Engine, settings repository.SettingsStore, defaultModel string, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		engine:       engine,
		settings:     settings,
		log:          logger,
		defaultModel: defaultModel,
		sessions:     make(map[string]*sessionState),
	}
}

func (a *Adapter) Descriptor() model.ProviderDescriptor {
	return model.ProviderDescriptor{
		Name:        model.ProviderWebGPU,
		Kind:        model.KindLocal,
		Description: "GPU-accelerated in-process model runtime",
	}
}

func (a *Adapter) Catalog() []model.ModelSpec { return Catalog() }

func (a *Adapter) CheckAvailability(ctx context.Context) model.Availability {
	ok, missing := a.engine.DetectGPU(ctx)
	var av model.Availability
	if !ok {
		reason := "no GPU compute interface available"
		if missing != "" {
			reason = reason + ": " + missing
		}
		av = model.Availability{Available: false, Reason: reason}
	} else {
		av = model.Availability{Available: true}
		a.mu.Lock()
		loaded := a.current != nil
		a.mu.Unlock()
		if !loaded {
			spec, _ := specByID(a.resolveModelID(ctx, provider.InitOptions{}))
			av.RequiresDownload = true
			av.Reason = "model weights are downloaded on first initialize"
			// Weight size roughly tracks the VRAM estimate.
			av.DownloadSizeBytes = int64(spec.VRAMMB) * 1024 * 1024
		}
	}
	metrics.ObserveProbe(model.ProviderWebGPU, av.Available)
	return av
}

func (a *Adapter) resolveModelID(ctx context.Context, opts provider.InitOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	if a.settings != nil {
		if v, err := a.settings.Load(ctx, repository.SettingWebGPUModel); err == nil && v != "" {
			return v
		}
	}
	if a.defaultModel != "" {
		return a.defaultModel
	}
	return catalog[0].ID
}

func (a *Adapter) Initialize(ctx context.Context, opts provider.InitOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	id := a.resolveModelID(ctx, opts)
	spec, ok := specByID(id)
	if !ok {
		return domain.NewConfigError("model", fmt.Sprintf("unknown catalog model %q", id))
	}
	if err := a.loadLocked(ctx, spec); err != nil {
		return err
	}
	a.initialized = true
	a.persistModel(ctx, id)
	a.log.Info().Str("provider", model.ProviderWebGPU).Str("model", id).Msg("initialized")
	return nil
}

// loadLocked loads spec while a.mu is held. Progress stays readable through
// the separate progress mutex.
func (a *Adapter) loadLocked(ctx context.Context, spec model.ModelSpec) error {
	a.setProgress(&model.Progress{Phase: model.PhaseDownloading, CurrentFile: spec.ID})
	lm, err := a.engine.Load(ctx, spec, func(p model.Progress) {
		cp := p
		a.setProgress(&cp)
	})
	if err != nil {
		a.setProgress(nil)
		return fmt.Errorf("load %s: %w", spec.ID, err)
	}
	a.current = lm
	a.currentID = spec.ID
	a.setProgress(&model.Progress{Phase: model.PhaseReady, Percentage: 100, CurrentFile: spec.ID})
	return nil
}

func (a *Adapter) persistModel(ctx context.Context, id string) {
	if a.settings == nil {
		return
	}
	if err := a.settings.Save(ctx, repository.SettingWebGPUModel, id); err != nil {
		a.log.Warn().Err(err).Msg("persist webgpu model selection")
	}
}

// SwitchModel tears down the current runtime and loads modelID. All
// sessions created before the switch become invalid.
func (a *Adapter) SwitchModel(ctx context.Context, modelID string) error {
	spec, ok := specByID(modelID)
	if !ok {
		return domain.NewConfigError("model", fmt.Sprintf("unknown catalog model %q", modelID))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return domain.ErrNotInitialized
	}
	if a.currentID == modelID {
		return nil
	}
	if a.current != nil {
		if err := a.current.Unload(ctx); err != nil {
			a.log.Warn().Err(err).Str("model", a.currentID).Msg("unload previous model")
		}
		a.current = nil
	}
	a.generation++
	if err := a.loadLocked(ctx, spec); err != nil {
		return err
	}
	a.persistModel(ctx, modelID)
	a.log.Info().Str("model", modelID).Msg("switched model")
	return nil
}

func (a *Adapter) CreateSession(ctx context.Context, cfg model.SessionConfig) (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized || a.current == nil {
		return nil, domain.ErrNotInitialized
	}
	sess := &model.Session{
		ID:       uuid.NewString(),
		Provider: model.ProviderWebGPU,
		Config:   cfg,
	}
	st := &sessionState{cfg: cfg, generation: a.generation}
	if sp := cfg.WithDefaults().SystemPrompt; sp != "" {
		st.history = append(st.history, model.Message{Role: model.RoleSystem, Content: sp})
	}
	a.sessions[sess.ID] = st
	return sess, nil
}

func (a *Adapter) PromptStreaming(ctx context.Context, sessionID, text string) (*provider.TextStream, error) {
	a.mu.Lock()
	st, ok := a.sessions[sessionID]
	if !ok {
		a.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}
	if st.generation != a.generation {
		a.mu.Unlock()
		return nil, domain.ErrSessionInvalidated
	}
	lm := a.current
	if lm == nil {
		a.mu.Unlock()
		return nil, domain.ErrNotInitialized
	}
	prior := len(st.history)
	st.history = append(st.history, model.Message{Role: model.RoleUser, Content: text})
	history := append([]model.Message(nil), st.history...)
	cfg := st.cfg.WithDefaults()
	a.mu.Unlock()

	stream := provider.Stream(ctx, func(ctx context.Context, emit func(string) error) error {
		var full strings.Builder
		err := lm.Generate(ctx, history, cfg, func(delta string) error {
			full.WriteString(delta)
			metrics.ObserveDelta(model.ProviderWebGPU)
			return emit(delta)
		})

		a.mu.Lock()
		defer a.mu.Unlock()
		if err != nil {
			st.history = st.history[:prior]
			return err
		}
		st.history = append(st.history, model.Message{Role: model.RoleAssistant, Content: full.String()})
		return nil
	})
	return stream, nil
}

func (a *Adapter) DestroySession(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
	return nil
}

func (a *Adapter) Progress() *model.Progress {
	a.progMu.Lock()
	defer a.progMu.Unlock()
	if a.progress == nil {
		return nil
	}
	cp := *a.progress
	return &cp
}

func (a *Adapter) setProgress(p *model.Progress) {
	a.progMu.Lock()
	a.progress = p
	a.progMu.Unlock()
}

func (a *Adapter) Dispose(ctx context.Context) error {
	a.mu.Lock()
	current := a.current
	a.current = nil
	a.currentID = ""
	a.sessions = make(map[string]*sessionState)
	a.initialized = false
	a.mu.Unlock()
	a.setProgress(nil)

	var errs []error
	if current != nil {
		if err := current.Unload(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unload: %w", err))
		}
	}
	return errors.Join(errs...)
}
