package remoteapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/model"
	"chat-ai-orchestrator/internal/domain/ports/provider"
	"chat-ai-orchestrator/internal/domain/ports/repository"
	"chat-ai-orchestrator/internal/infra/metrics"
	"chat-ai-orchestrator/internal/infra/security"
)

var _ provider.ModelProvider = (*Adapter)(nil)

// Defaults seed the adapter from file configuration; persisted settings and
// Initialize options take precedence.
type Defaults struct {
	Flavor   string
	APIKey   string
	Model    string
	Endpoint string
}

type sessionState struct {
	cfg     model.SessionConfig
	history []model.Message
}

// Adapter speaks to a remote inference HTTP API in one of three wire
// flavors. One adapter, three protocols: the flavor only changes endpoint
// shape and credential requirement.
type Adapter struct {
	settings repository.SettingsStore
	enc      *security.EncryptionService // nil disables at-rest key encryption
	defaults Defaults
	log      *zerolog.Logger

	// No client timeout: streams are long-lived and cancellation is the
	// caller's context.
	client *http.Client

	mu          sync.Mutex
	initialized bool
	flavor      string
	modelID     string
	endpoint    string
	apiKey      string
	sessions    map[string]*sessionState
}

func NewAdapter(settings repository.SettingsStore, enc *security.EncryptionService, defaults Defaults, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		settings: settings,
		enc:      enc,
		defaults: defaults,
		log:      logger,
		client:   &http.Client{},
		sessions: make(map[string]*sessionState),
	}
}

func (a *Adapter) Descriptor() model.ProviderDescriptor {
	return model.ProviderDescriptor{
		Name:        model.ProviderRemoteAPI,
		Kind:        model.KindRemote,
		Description: "Remote inference API (OpenAI / Anthropic / Ollama compatible)",
	}
}

// resolveFlavor picks the effective flavor without mutating anything.
func (a *Adapter) resolveFlavor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if a.settings != nil {
		if v, err := a.settings.Load(ctx, repository.SettingAPIBackendFlavor); err == nil && v != "" {
			return v
		}
	}
	return a.defaults.Flavor
}

func (a *Adapter) resolveEndpoint(ctx context.Context, flavor, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if a.settings != nil {
		if v, err := a.settings.Load(ctx, repository.SettingAPIEndpoint); err == nil && v != "" {
			return v
		}
	}
	if a.defaults.Endpoint != "" {
		return a.defaults.Endpoint
	}
	return defaultEndpoint(flavor)
}

// loadKey reads the persisted key for flavor, decrypting when an encryption
// service is wired. A key that fails to decrypt is treated as absent.
func (a *Adapter) loadKey(ctx context.Context, flavor string) string {
	if a.settings == nil {
		return ""
	}
	stored, err := a.settings.Load(ctx, keySettingName(flavor))
	if err != nil || stored == "" {
		return ""
	}
	if a.enc == nil {
		return stored
	}
	plain, err := a.enc.Decrypt(stored)
	if err != nil {
		a.log.Warn().Err(err).Str("flavor", flavor).Msg("stored api key failed to decrypt")
		return ""
	}
	return plain
}

func (a *Adapter) persistKey(ctx context.Context, flavor, key string) {
	if a.settings == nil || key == "" {
		return
	}
	stored := key
	if a.enc != nil {
		encd, err := a.enc.Encrypt(key)
		if err != nil {
			a.log.Warn().Err(err).Msg("encrypt api key")
			return
		}
		stored = encd
	}
	if err := a.settings.Save(ctx, keySettingName(flavor), stored); err != nil {
		a.log.Warn().Err(err).Msg("persist api key")
	}
}

func (a *Adapter) CheckAvailability(ctx context.Context) model.Availability {
	flavor := a.resolveFlavor(ctx, "")
	a.mu.Lock()
	if a.initialized {
		flavor = a.flavor
	}
	memKey := a.apiKey
	a.mu.Unlock()
	if !validFlavor(flavor) {
		flavor = FlavorOllama
	}

	var av model.Availability
	if requiresKey(flavor) {
		key := memKey
		if key == "" {
			key = a.defaults.APIKey
		}
		if key == "" {
			key = a.loadKey(ctx, flavor)
		}
		if key == "" {
			av = model.Availability{
				Available: false,
				Reason:    fmt.Sprintf("no API key configured for %s backend", flavor),
			}
		} else {
			av = model.Availability{Available: true}
		}
	} else {
		// Local-server flavor: reachability is the only prerequisite.
		endpoint := a.resolveEndpoint(ctx, flavor, "")
		av = a.probeOllama(ctx, endpoint)
	}
	metrics.ObserveProbe(model.ProviderRemoteAPI, av.Available)
	return av
}

func (a *Adapter) probeOllama(ctx context.Context, endpoint string) model.Availability {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+"/api/tags", nil)
	if err != nil {
		return model.Availability{Available: false, Reason: fmt.Sprintf("invalid endpoint: %v", err)}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return model.Availability{Available: false, Reason: fmt.Sprintf("local server unreachable at %s", endpoint)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return model.Availability{Available: false, Reason: fmt.Sprintf("local server returned http %d", resp.StatusCode)}
	}
	return model.Availability{Available: true}
}

func (a *Adapter) Initialize(ctx context.Context, opts provider.InitOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	flavor := a.resolveFlavor(ctx, opts.Flavor)
	if flavor == "" {
		return domain.NewConfigError("flavor", "no backend flavor configured")
	}
	if !validFlavor(flavor) {
		return domain.NewConfigError("flavor", fmt.Sprintf("unknown backend flavor %q", flavor))
	}

	key := opts.APIKey
	if key != "" {
		a.persistKey(ctx, flavor, key)
	}
	if key == "" {
		key = a.defaults.APIKey
	}
	if key == "" {
		key = a.loadKey(ctx, flavor)
	}
	if requiresKey(flavor) && key == "" {
		return domain.NewConfigError("api_key", fmt.Sprintf("%s backend requires an API key", flavor))
	}

	modelID := opts.Model
	if modelID == "" && a.settings != nil {
		if v, err := a.settings.Load(ctx, repository.SettingAPIModelID); err == nil {
			modelID = v
		}
	}
	if modelID == "" {
		modelID = a.defaults.Model
	}
	if modelID == "" {
		modelID = defaultModel(flavor)
	}

	a.flavor = flavor
	a.modelID = modelID
	a.endpoint = a.resolveEndpoint(ctx, flavor, opts.Endpoint)
	a.apiKey = key
	a.initialized = true
	a.log.Info().
		Str("provider", model.ProviderRemoteAPI).
		Str("flavor", flavor).
		Str("model", modelID).
		Str("endpoint", a.endpoint).
		Msg("initialized")
	return nil
}

func (a *Adapter) CreateSession(ctx context.Context, cfg model.SessionConfig) (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil, domain.ErrNotInitialized
	}
	sess := &model.Session{
		ID:       uuid.NewString(),
		Provider: model.ProviderRemoteAPI,
		Config:   cfg,
	}
	st := &sessionState{cfg: cfg}
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
	if !a.initialized {
		a.mu.Unlock()
		return nil, domain.ErrNotInitialized
	}
	flavor, endpoint, modelID, key := a.flavor, a.endpoint, a.modelID, a.apiKey
	prior := len(st.history)
	st.history = append(st.history, model.Message{Role: model.RoleUser, Content: text})
	history := append([]model.Message(nil), st.history...)
	cfg := st.cfg.WithDefaults()
	a.mu.Unlock()

	metrics.ObservePromptTokens(model.ProviderRemoteAPI, modelID, estimateTokens(history))
	start := time.Now()

	stream := provider.Stream(ctx, func(ctx context.Context, emit func(string) error) error {
		var full strings.Builder
		err := a.exchange(ctx, flavor, endpoint, modelID, key, history, cfg, func(delta string) error {
			full.WriteString(delta)
			metrics.ObserveDelta(model.ProviderRemoteAPI)
			return emit(delta)
		})

		metrics.ObserveStreamDuration(model.ProviderRemoteAPI, float64(time.Since(start).Milliseconds()))
		a.mu.Lock()
		defer a.mu.Unlock()
		if err != nil {
			st.history = st.history[:prior]
			metrics.ObserveStreamFailure(model.ProviderRemoteAPI, failureClass(err))
			return err
		}
		st.history = append(st.history, model.Message{Role: model.RoleAssistant, Content: full.String()})
		return nil
	})
	return stream, nil
}

// exchange performs one streaming chat round trip and decodes the response
// body with the flavor's decoder. The body is released on every exit path.
func (a *Adapter) exchange(ctx context.Context, flavor, endpoint, modelID, key string, history []model.Message, cfg model.SessionConfig, emit func(string) error) error {
	req, err := buildRequest(ctx, flavor, endpoint, modelID, key, history, cfg)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		return &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &domain.TransportError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.Body == http.NoBody {
		return domain.ErrMissingResponseBody
	}
	if err := decoderFor(flavor)(resp.Body, emit, a.log); err != nil {
		if ctx.Err() != nil && !errors.Is(err, domain.ErrCancelled) {
			return fmt.Errorf("%w: %v", domain.ErrCancelled, err)
		}
		if errors.Is(err, domain.ErrCancelled) || domain.IsTransportError(err) {
			return err
		}
		return &domain.TransportError{Err: err}
	}
	return nil
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrGPUContextLost):
		return "fatal"
	case domain.IsTransportError(err), errors.Is(err, domain.ErrMissingResponseBody):
		return "transport"
	default:
		return "other"
	}
}

func (a *Adapter) DestroySession(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
	return nil
}

// Progress is meaningless for a remote backend: nothing downloads.
func (a *Adapter) Progress() *model.Progress { return nil }

func (a *Adapter) Dispose(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = make(map[string]*sessionState)
	a.initialized = false
	a.apiKey = ""
	return nil
}
