package webgpu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/model"
	"chat-ai-orchestrator/internal/domain/ports/provider"
	"chat-ai-orchestrator/internal/domain/ports/repository"
	"chat-ai-orchestrator/internal/infra/settings"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func newReadyAdapter(t *testing.T, engine *SimEngine) (*Adapter, *settings.MemoryStore) {
	t.Helper()
	store := settings.NewMemoryStore()
	a := NewAdapter(engine, store, "", newLogger())
	if err := a.Initialize(context.Background(), provider.InitOptions{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return a, store
}

func TestCatalogIsStatic(t *testing.T) {
	a := NewAdapter(NewSimEngine(), nil, "", newLogger())

	// Catalog needs no initialization and returns a defensive copy.
	cat := a.Catalog()
	if len(cat) == 0 {
		t.Fatal("catalog is empty")
	}
	cat[0].ID = "mutated"
	if a.Catalog()[0].ID == "mutated" {
		t.Fatal("catalog copy leaked the backing array")
	}
	for _, spec := range a.Catalog() {
		if spec.VRAMMB <= 0 || spec.ContextLength <= 0 {
			t.Errorf("spec %s has no resource estimates: %+v", spec.ID, spec)
		}
	}
}

func TestAvailabilityWithoutGPU(t *testing.T) {
	a := NewAdapter(NewSimEngine(WithGPU(false, "no webgpu device")), nil, "", newLogger())
	av := a.CheckAvailability(context.Background())
	if av.Available {
		t.Fatalf("availability = %+v", av)
	}
	if !strings.Contains(av.Reason, "no webgpu device") {
		t.Fatalf("reason = %q", av.Reason)
	}
}

func TestAvailabilityReportsDownloadBeforeLoad(t *testing.T) {
	a := NewAdapter(NewSimEngine(), nil, "", newLogger())
	av := a.CheckAvailability(context.Background())
	if !av.Available || !av.RequiresDownload || av.DownloadSizeBytes == 0 {
		t.Fatalf("availability before load = %+v", av)
	}

	if err := a.Initialize(context.Background(), provider.InitOptions{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	av = a.CheckAvailability(context.Background())
	if !av.Available || av.RequiresDownload {
		t.Fatalf("availability after load = %+v", av)
	}
}

func TestInitializeUnknownModel(t *testing.T) {
	a := NewAdapter(NewSimEngine(), nil, "", newLogger())
	err := a.Initialize(context.Background(), provider.InitOptions{Model: "gpt-99"})
	if !domain.IsConfigError(err) {
		t.Fatalf("Initialize(unknown model) = %v, want ConfigError", err)
	}
}

func TestInitializePersistsModelSelection(t *testing.T) {
	_, store := newReadyAdapter(t, NewSimEngine())
	v, err := store.Load(context.Background(), repository.SettingWebGPUModel)
	if err != nil {
		t.Fatalf("load persisted model: %v", err)
	}
	if _, ok := specByID(v); !ok {
		t.Fatalf("persisted model %q not in catalog", v)
	}
}

func TestProgressAfterInitialize(t *testing.T) {
	a, _ := newReadyAdapter(t, NewSimEngine())
	p := a.Progress()
	if p == nil || p.Phase != model.PhaseReady || p.Percentage != 100 {
		t.Fatalf("progress = %+v", p)
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	a, _ := newReadyAdapter(t, NewSimEngine())
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	stream, err := a.PromptStreaming(context.Background(), sess.ID, "ping")
	if err != nil {
		t.Fatalf("PromptStreaming: %v", err)
	}
	text, err := stream.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Generated reply to: ping" {
		t.Fatalf("text = %q", text)
	}
}

func TestSwitchModelInvalidatesSessions(t *testing.T) {
	a, store := newReadyAdapter(t, NewSimEngine())
	old, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	target := catalog[1].ID
	a.mu.Lock()
	if a.currentID == target {
		target = catalog[0].ID
	}
	a.mu.Unlock()

	if err := a.SwitchModel(context.Background(), target); err != nil {
		t.Fatalf("SwitchModel: %v", err)
	}

	if _, err := a.PromptStreaming(context.Background(), old.ID, "hi"); !errors.Is(err, domain.ErrSessionInvalidated) {
		t.Fatalf("stale session prompt = %v, want ErrSessionInvalidated", err)
	}

	// Fresh sessions work against the new model, and the choice persists.
	fresh, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession after switch: %v", err)
	}
	stream, err := a.PromptStreaming(context.Background(), fresh.ID, "hi")
	if err != nil {
		t.Fatalf("PromptStreaming after switch: %v", err)
	}
	if _, err := stream.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if v, _ := store.Load(context.Background(), repository.SettingWebGPUModel); v != target {
		t.Fatalf("persisted model = %q, want %q", v, target)
	}
}

func TestSwitchModelToSameIsNoop(t *testing.T) {
	a, _ := newReadyAdapter(t, NewSimEngine())
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	a.mu.Lock()
	current := a.currentID
	a.mu.Unlock()

	if err := a.SwitchModel(context.Background(), current); err != nil {
		t.Fatalf("SwitchModel(same): %v", err)
	}
	// The session survives a same-model "switch".
	stream, err := a.PromptStreaming(context.Background(), sess.ID, "hi")
	if err != nil {
		t.Fatalf("PromptStreaming: %v", err)
	}
	if _, err := stream.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
}

func TestSwitchModelBeforeInitialize(t *testing.T) {
	a := NewAdapter(NewSimEngine(), nil, "", newLogger())
	if err := a.SwitchModel(context.Background(), catalog[0].ID); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("SwitchModel = %v, want ErrNotInitialized", err)
	}
}

func TestSwitchModelUnknown(t *testing.T) {
	a, _ := newReadyAdapter(t, NewSimEngine())
	if err := a.SwitchModel(context.Background(), "nope"); !domain.IsConfigError(err) {
		t.Fatalf("SwitchModel(unknown) = %v, want ConfigError", err)
	}
}

func TestGenerationFaultRollsBackAndSurfaces(t *testing.T) {
	engine := NewSimEngine()
	a, _ := newReadyAdapter(t, engine)
	sess, err := a.CreateSession(context.Background(), model.SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	engine.FailGeneration(1, fmt.Errorf("%w: device reset", domain.ErrGPUContextLost))
	stream, err := a.PromptStreaming(context.Background(), sess.ID, "hi")
	if err != nil {
		t.Fatalf("PromptStreaming: %v", err)
	}
	_, cerr := stream.Collect()
	if !errors.Is(cerr, domain.ErrGPUContextLost) {
		t.Fatalf("Collect error = %v, want ErrGPUContextLost", cerr)
	}

	a.mu.Lock()
	historyLen := len(a.sessions[sess.ID].history)
	a.mu.Unlock()
	if historyLen != 0 {
		t.Fatalf("history len after fault = %d, want 0", historyLen)
	}
}

func TestLoadReportsProgressPhases(t *testing.T) {
	var phases []model.ProgressPhase
	engine := NewSimEngine()
	_, err := engine.Load(context.Background(), catalog[0], func(p model.Progress) {
		phases = append(phases, p.Phase)
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(phases) < 2 {
		t.Fatalf("phases = %v", phases)
	}
	if phases[0] != model.PhaseDownloading {
		t.Fatalf("first phase = %s", phases[0])
	}
	if phases[len(phases)-1] != model.PhaseLoading {
		t.Fatalf("last phase = %s", phases[len(phases)-1])
	}
}

func TestDisposeUnloadsModel(t *testing.T) {
	a, _ := newReadyAdapter(t, NewSimEngine())
	if err := a.Dispose(context.Background()); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if a.Progress() != nil {
		t.Fatal("progress must clear on dispose")
	}
	if _, err := a.CreateSession(context.Background(), model.SessionConfig{}); !errors.Is(err, domain.ErrNotInitialized) {
		t.Fatalf("CreateSession after Dispose = %v, want ErrNotInitialized", err)
	}
}
