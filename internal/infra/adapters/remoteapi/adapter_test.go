package remoteapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/model"
	"chat-ai-orchestrator/internal/domain/ports/provider"
	"chat-ai-orchestrator/internal/domain/ports/repository"
	"chat-ai-orchestrator/internal/infra/security"
	"chat-ai-orchestrator/internal/infra/settings"
)

func newTestAdapter(store repository.SettingsStore, enc *security.EncryptionService, defaults Defaults) *Adapter {
	return NewAdapter(store, enc, defaults, newLogger())
}

func openAIStreamHandler(t *testing.T, deltas []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestInitializeRequiresKeyForHostedFlavors(t *testing.T) {
	for _, flavor := range []string{FlavorOpenAI, FlavorAnthropic} {
		a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
		err := a.Initialize(context.Background(), provider.InitOptions{Flavor: flavor})
		if !domain.IsConfigError(err) {
			t.Errorf("Initialize(%s) without key = %v, want ConfigError", flavor, err)
		}
	}

	// Ollama takes no credential.
	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	if err := a.Initialize(context.Background(), provider.InitOptions{Flavor: FlavorOllama}); err != nil {
		t.Fatalf("Initialize(ollama): %v", err)
	}
}

func TestInitializeRejectsUnknownFlavor(t *testing.T) {
	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	err := a.Initialize(context.Background(), provider.InitOptions{Flavor: "grpc"})
	if !domain.IsConfigError(err) {
		t.Fatalf("Initialize(grpc) = %v, want ConfigError", err)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	if err := a.Initialize(context.Background(), provider.InitOptions{Flavor: FlavorOpenAI, APIKey: "sk-test", Model: "gpt-x"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// Second call is a no-op: new options must not take effect.
	if err := a.Initialize(context.Background(), provider.InitOptions{Flavor: FlavorOllama, Model: "other"}); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	a.mu.Lock()
	flavor, modelID := a.flavor, a.modelID
	a.mu.Unlock()
	if flavor != FlavorOpenAI || modelID != "gpt-x" {
		t.Fatalf("after second Initialize: flavor=%s model=%s", flavor, modelID)
	}
}

func TestInitializePersistsEncryptedKey(t *testing.T) {
	store := settings.NewMemoryStore()
	enc, err := security.NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("encryption service: %v", err)
	}
	a := newTestAdapter(store, enc, Defaults{})
	if err := a.Initialize(context.Background(), provider.InitOptions{Flavor: FlavorOpenAI, APIKey: "sk-secret"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	stored, err := store.Load(context.Background(), keySettingName(FlavorOpenAI))
	if err != nil {
		t.Fatalf("load stored key: %v", err)
	}
	if stored == "sk-secret" {
		t.Fatal("API key stored in plaintext")
	}
	plain, err := enc.Decrypt(stored)
	if err != nil || plain != "sk-secret" {
		t.Fatalf("decrypt stored key = %q, %v", plain, err)
	}

	// A fresh adapter over the same store finds the credential again.
	b := newTestAdapter(store, enc, Defaults{Flavor: FlavorOpenAI})
	if av := b.CheckAvailability(context.Background()); !av.Available {
		t.Fatalf("availability with persisted key = %+v", av)
	}
}

func TestCheckAvailabilityHostedWithoutKey(t *testing.T) {
	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{Flavor: FlavorAnthropic})
	av := a.CheckAvailability(context.Background())
	if av.Available {
		t.Fatalf("availability without key = %+v", av)
	}
	if av.Reason == "" {
		t.Fatal("unavailable probe must carry a reason")
	}
}

func TestCheckAvailabilityOllamaProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("probe path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer srv.Close()

	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{Flavor: FlavorOllama, Endpoint: srv.URL})
	if av := a.CheckAvailability(context.Background()); !av.Available {
		t.Fatalf("availability against live server = %+v", av)
	}

	srv.Close()
	if av := a.CheckAvailability(context.Background()); av.Available {
		t.Fatal("availability against dead server must be false")
	}
}

func TestPromptStreamingRoundTrip(t *testing.T) {
	srv := httptest.NewServer(openAIStreamHandler(t, []string{"Hello", " world"}))
	defer srv.Close()

	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	opts := provider.InitOptions{Flavor: FlavorOpenAI, APIKey: "sk-test", Endpoint: srv.URL}
	if err := a.Initialize(context.Background(), opts); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	stream, err := a.PromptStreaming(context.Background(), sess.ID, "hi")
	if err != nil {
		t.Fatalf("PromptStreaming: %v", err)
	}
	text, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("text = %q", text)
	}

	a.mu.Lock()
	history := append([]model.Message(nil), a.sessions[sess.ID].history...)
	a.mu.Unlock()
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Role != model.RoleUser || history[0].Content != "hi" {
		t.Fatalf("history[0] = %+v", history[0])
	}
	if history[1].Role != model.RoleAssistant || history[1].Content != "Hello world" {
		t.Fatalf("history[1] = %+v", history[1])
	}
}

func TestPromptStreamingRollsBackOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	opts := provider.InitOptions{Flavor: FlavorOpenAI, APIKey: "sk-test", Endpoint: srv.URL}
	if err := a.Initialize(context.Background(), opts); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{SystemPrompt: "be brief"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	stream, err := a.PromptStreaming(context.Background(), sess.ID, "hi")
	if err != nil {
		t.Fatalf("PromptStreaming: %v", err)
	}
	_, cerr := stream.Collect()
	var te *domain.TransportError
	if !errors.As(cerr, &te) {
		t.Fatalf("Collect error = %v, want TransportError", cerr)
	}
	if te.Status != http.StatusTooManyRequests || te.Body != "rate limited" {
		t.Fatalf("TransportError = %+v", te)
	}

	// Failed exchange must not leave the speculative user message behind.
	a.mu.Lock()
	history := append([]model.Message(nil), a.sessions[sess.ID].history...)
	a.mu.Unlock()
	if len(history) != 1 || history[0].Role != model.RoleSystem {
		t.Fatalf("history after failure = %+v", history)
	}
}

func TestPromptStreamingCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	opts := provider.InitOptions{Flavor: FlavorOpenAI, APIKey: "sk-test", Endpoint: srv.URL}
	if err := a.Initialize(context.Background(), opts); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := a.PromptStreaming(ctx, sess.ID, "hi")
	if err != nil {
		t.Fatalf("PromptStreaming: %v", err)
	}
	if delta, err := stream.Recv(); err != nil || delta != "Hello" {
		t.Fatalf("first Recv = %q, %v", delta, err)
	}
	cancel()
	_, cerr := stream.Collect()
	if !errors.Is(cerr, domain.ErrCancelled) {
		t.Fatalf("terminal error = %v, want ErrCancelled", cerr)
	}

	// Cancellation rolls back too: a retry replays the same context.
	a.mu.Lock()
	historyLen := len(a.sessions[sess.ID].history)
	a.mu.Unlock()
	if historyLen != 0 {
		t.Fatalf("history len after cancel = %d, want 0", historyLen)
	}
}

func TestAnthropicSystemPromptSplit(t *testing.T) {
	var captured struct {
		Model    string          `json:"model"`
		Messages []model.Message `json:"messages"`
		System   string          `json:"system"`
		Stream   bool            `json:"stream"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("anthropic-version = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"ok\"}}\n\n")
	}))
	defer srv.Close()

	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	opts := provider.InitOptions{Flavor: FlavorAnthropic, APIKey: "sk-ant", Endpoint: srv.URL}
	if err := a.Initialize(context.Background(), opts); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{SystemPrompt: "be brief"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	stream, err := a.PromptStreaming(context.Background(), sess.ID, "hi")
	if err != nil {
		t.Fatalf("PromptStreaming: %v", err)
	}
	if _, err := stream.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if captured.System != "be brief" {
		t.Fatalf("system field = %q", captured.System)
	}
	for _, m := range captured.Messages {
		if m.Role == model.RoleSystem {
			t.Fatalf("system role leaked into messages: %+v", captured.Messages)
		}
	}
	if !captured.Stream {
		t.Fatal("stream flag not set")
	}
}

func TestOllamaStopsAtDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, "{\"message\":{\"content\":\"Hello\"}}\n")
		fmt.Fprint(w, "{\"done\":true}\n")
		fmt.Fprint(w, "{\"message\":{\"content\":\"trailing\"}}\n")
	}))
	defer srv.Close()

	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	opts := provider.InitOptions{Flavor: FlavorOllama, Endpoint: srv.URL}
	if err := a.Initialize(context.Background(), opts); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	stream, err := a.PromptStreaming(context.Background(), sess.ID, "hi")
	if err != nil {
		t.Fatalf("PromptStreaming: %v", err)
	}
	text, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello" {
		t.Fatalf("text = %q", text)
	}
}

func TestCreateSessionBeforeInitialize(t *testing.T) {
	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	if _, err := a.CreateSession(context.Background(), model.SessionConfig{}); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("CreateSession = %v, want ErrNotInitialized", err)
	}
}

func TestPromptStreamingUnknownSession(t *testing.T) {
	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	if err := a.Initialize(context.Background(), provider.InitOptions{Flavor: FlavorOllama}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := a.PromptStreaming(context.Background(), "ghost", "hi"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("PromptStreaming = %v, want ErrSessionNotFound", err)
	}
}

func TestDisposeClearsState(t *testing.T) {
	a := newTestAdapter(settings.NewMemoryStore(), nil, Defaults{})
	if err := a.Initialize(context.Background(), provider.InitOptions{Flavor: FlavorOllama}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := a.Dispose(context.Background()); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if _, err := a.CreateSession(context.Background(), model.SessionConfig{}); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("CreateSession after Dispose = %v, want ErrNotInitialized", err)
	}
	if _, err := a.PromptStreaming(context.Background(), sess.ID, "hi"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("PromptStreaming after Dispose = %v, want ErrSessionNotFound", err)
	}
}
