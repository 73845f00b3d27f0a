package provider

import (
	"context"

	"chat-ai-orchestrator/internal/domain/model"
)

// InitOptions carries adapter configuration supplied at initialize time.
// Zero-value fields mean "use persisted settings or defaults". Adapters
// ignore fields that do not apply to them.
type InitOptions struct {
	Flavor   string // remote adapter wire flavor: "openai" | "anthropic" | "ollama"
	APIKey   string
	Model    string
	Endpoint string
}

// IsZero reports whether no explicit option was supplied.
func (o InitOptions) IsZero() bool {
	return o == InitOptions{}
}

// ModelProvider is the session contract every backend adapter implements.
// Callers must not depend on anything adapter-specific beyond this interface
// and the optional capabilities below.
type ModelProvider interface {
	// Descriptor returns the immutable identity of the backend.
	Descriptor() model.ProviderDescriptor

	// CheckAvailability probes whether the backend is currently usable.
	// It never fails: an unusable backend is reported as Available=false
	// with a human-readable Reason.
	CheckAvailability(ctx context.Context) model.Availability

	// Initialize prepares the adapter. Idempotent: a second call on an
	// already-initialized adapter is a no-op. Supplied credentials, model
	// id and endpoint are applied and persisted. Returns a ConfigError if
	// a mandatory credential is absent.
	Initialize(ctx context.Context, opts InitOptions) error

	// CreateSession opens a new conversation. Fails with
	// domain.ErrNotInitialized before Initialize.
	CreateSession(ctx context.Context, cfg model.SessionConfig) (*model.Session, error)

	// PromptStreaming appends text as a user message and streams the
	// assistant reply as text deltas. The user message is recorded before
	// the first byte is requested; the full assistant reply is recorded
	// only after the stream completes cleanly. On any terminal failure
	// (including cancellation) the speculative user message is rolled
	// back so a retry replays the same preceding context.
	PromptStreaming(ctx context.Context, sessionID, text string) (*TextStream, error)

	// DestroySession releases the session's resources. Destroying an
	// unknown session is a no-op, not a fault.
	DestroySession(ctx context.Context, sessionID string) error

	// Progress reports the current download/load state, or nil when not
	// meaningful for this backend.
	Progress() *model.Progress

	// Dispose destroys all live sessions best-effort and resets the
	// initialization flag.
	Dispose(ctx context.Context) error
}

// SessionCloner is an optional capability: duplicating a session's context
// into a new independent session (conversation branching).
type SessionCloner interface {
	CloneSession(ctx context.Context, sessionID string) (*model.Session, error)
}

// ModelSwitcher is an optional capability: backends with a selectable model
// catalog support switching the loaded model at runtime. Switching
// invalidates every session created before the switch.
type ModelSwitcher interface {
	// Catalog never requires initialization.
	Catalog() []model.ModelSpec
	SwitchModel(ctx context.Context, modelID string) error
}
