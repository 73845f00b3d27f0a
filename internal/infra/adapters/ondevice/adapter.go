package ondevice

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
	"chat-ai-orchestrator/internal/infra/metrics"
)

var (
	_ provider.ModelProvider = (*Adapter)(nil)
	_ provider.SessionCloner = (*Adapter)(nil)
)

type sessionState struct {
	native  NativeSession
	cfg     model.SessionConfig
	history []model.Message
}

// Adapter exposes the platform's built-in on-device model behind the
// session contract.
type Adapter struct {
	rt  Runtime
	log *zerolog.Logger

	mu          sync.Mutex
	initialized bool
	sessions    map[string]*sessionState
}

func NewAdapter(rt Runtime, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		rt:       rt,
		log:      logger,
		sessions: make(map[string]*sessionState),
	}
}

func (a *Adapter) Descriptor() model.ProviderDescriptor {
	return model.ProviderDescriptor{
		Name:        model.ProviderOnDevice,
		Kind:        model.KindLocal,
		Description: "Built-in on-device language model",
	}
}

func (a *Adapter) CheckAvailability(ctx context.Context) model.Availability {
	cap := a.rt.Capability(ctx)
	var av model.Availability
	switch cap.State {
	case CapabilityReady:
		av = model.Availability{Available: true}
	case CapabilityNeedsDownload:
		av = model.Availability{
			Available:         true,
			Reason:            "model weights must be downloaded before first use",
			RequiresDownload:  true,
			DownloadSizeBytes: cap.DownloadSizeBytes,
		}
	default:
		reason := "platform does not provide an on-device model"
		if cap.Detail != "" {
			reason = reason + ": " + cap.Detail
		}
		av = model.Availability{Available: false, Reason: reason}
	}
	metrics.ObserveProbe(model.ProviderOnDevice, av.Available)
	return av
}

// Initialize is idempotent; the on-device backend needs no credentials.
func (a *Adapter) Initialize(ctx context.Context, opts provider.InitOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	a.initialized = true
	a.log.Info().Str("provider", model.ProviderOnDevice).Msg("initialized")
	return nil
}

func (a *Adapter) CreateSession(ctx context.Context, cfg model.SessionConfig) (*model.Session, error) {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return nil, domain.ErrNotInitialized
	}
	a.mu.Unlock()

	eff := cfg.WithDefaults()
	native, err := a.rt.NewSession(ctx, NativeOptions{
		Temperature:  eff.Temperature,
		TopK:         eff.TopK,
		SystemPrompt: eff.SystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("native session: %w", err)
	}

	sess := &model.Session{
		ID:       uuid.NewString(),
		Provider: model.ProviderOnDevice,
		Config:   cfg,
	}
	st := &sessionState{native: native, cfg: cfg}
	if eff.SystemPrompt != "" {
		st.history = append(st.history, model.Message{Role: model.RoleSystem, Content: eff.SystemPrompt})
	}

	a.mu.Lock()
	a.sessions[sess.ID] = st
	a.mu.Unlock()
	return sess, nil
}

func (a *Adapter) PromptStreaming(ctx context.Context, sessionID, text string) (*provider.TextStream, error) {
	a.mu.Lock()
	st, ok := a.sessions[sessionID]
	if !ok {
		a.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}
	prior := len(st.history)
	st.history = append(st.history, model.Message{Role: model.RoleUser, Content: text})
	a.mu.Unlock()

	stream := provider.Stream(ctx, func(ctx context.Context, emit func(string) error) error {
		var full strings.Builder
		err := st.native.Prompt(ctx, text, func(delta string) error {
			full.WriteString(delta)
			metrics.ObserveDelta(model.ProviderOnDevice)
			return emit(delta)
		})

		a.mu.Lock()
		defer a.mu.Unlock()
		if err != nil {
			// Retries must replay the same preceding context.
			st.history = st.history[:prior]
			return err
		}
		st.history = append(st.history, model.Message{Role: model.RoleAssistant, Content: full.String()})
		return nil
	})
	return stream, nil
}

// CloneSession duplicates the native context and mirrored history into a
// new independent session.
func (a *Adapter) CloneSession(ctx context.Context, sessionID string) (*model.Session, error) {
	a.mu.Lock()
	st, ok := a.sessions[sessionID]
	if !ok {
		a.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}
	cfg := st.cfg
	history := append([]model.Message(nil), st.history...)
	a.mu.Unlock()

	native, err := st.native.Clone(ctx)
	if err != nil {
		return nil, fmt.Errorf("clone native session: %w", err)
	}
	sess := &model.Session{
		ID:       uuid.NewString(),
		Provider: model.ProviderOnDevice,
		Config:   cfg,
	}
	a.mu.Lock()
	a.sessions[sess.ID] = &sessionState{native: native, cfg: cfg, history: history}
	a.mu.Unlock()
	return sess, nil
}

func (a *Adapter) DestroySession(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	st, ok := a.sessions[sessionID]
	if ok {
		delete(a.sessions, sessionID)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return st.native.Destroy(ctx)
}

func (a *Adapter) Progress() *model.Progress {
	return a.rt.Progress()
}

func (a *Adapter) Dispose(ctx context.Context) error {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = make(map[string]*sessionState)
	a.initialized = false
	a.mu.Unlock()

	var errs []error
	for id, st := range sessions {
		if err := st.native.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("destroy %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
