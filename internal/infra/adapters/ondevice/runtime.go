package ondevice

import (
	"context"

	"chat-ai-orchestrator/internal/domain/model"
)

// CapabilityState is the platform runtime's own readiness classification.
type CapabilityState string

const (
	CapabilityReady         CapabilityState = "ready"
	CapabilityNeedsDownload CapabilityState = "needs-download"
	CapabilityUnsupported   CapabilityState = "unsupported"
)

// Capability is the result of asking the platform runtime what it can do.
type Capability struct {
	State             CapabilityState
	DownloadSizeBytes int64
	// Detail names the missing prerequisite when State is unsupported.
	Detail string
}

// NativeOptions are forwarded to the platform session constructor.
type NativeOptions struct {
	Temperature  float64
	TopK         int
	SystemPrompt string
}

// NativeSession is one platform-held conversation context. The platform
// session keeps its own history; the adapter mirrors it for the contract's
// rollback semantics.
type NativeSession interface {
	// Prompt generates a reply to text, pushing deltas through emit.
	// emit's error must be propagated (it signals cancellation).
	Prompt(ctx context.Context, text string, emit func(delta string) error) error

	// Clone duplicates the session context into a new independent session.
	Clone(ctx context.Context) (NativeSession, error)

	Destroy(ctx context.Context) error
}

// Runtime is the port for the platform-provided on-device language model.
type Runtime interface {
	Capability(ctx context.Context) Capability
	NewSession(ctx context.Context, opts NativeOptions) (NativeSession, error)
	// Progress reports download state, nil when idle/ready.
	Progress() *model.Progress
}
