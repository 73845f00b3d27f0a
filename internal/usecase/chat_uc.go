// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/model"
	"chat-ai-orchestrator/internal/domain/ports/provider"
	"chat-ai-orchestrator/internal/infra/recovery"
	"chat-ai-orchestrator/internal/infra/registry"
)

// ChatUseCase binds callers to whichever provider is currently active. It
// owns the session-to-provider mapping and is the error classifier that
// routes fatal hardware faults to the recovery coordinator; the adapters
// themselves never recover.
type ChatUseCase struct {
	reg *registry.Registry
	rec *recovery.Coordinator
	log *zerolog.Logger

	mu     sync.Mutex
	owners map[string]string // session id -> provider name
}

func NewChatUseCase(reg *registry.Registry, rec *recovery.Coordinator, logger *zerolog.Logger) *ChatUseCase {
	return &ChatUseCase{
		reg:    reg,
		rec:    rec,
		log:    logger,
		owners: map[string]string{},
	}
}

func (uc *ChatUseCase) active() (provider.ModelProvider, error) {
	p := uc.reg.Active()
	if p == nil {
		return nil, domain.ErrNoActiveProvider
	}
	return p, nil
}

// CreateSession opens a session on the active provider.
func (uc *ChatUseCase) CreateSession(ctx context.Context, cfg model.SessionConfig) (*model.Session, error) {
	p, err := uc.active()
	if err != nil {
		return nil, err
	}
	sess, err := p.CreateSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	uc.mu.Lock()
	uc.owners[sess.ID] = sess.Provider
	uc.mu.Unlock()
	return sess, nil
}

// owner resolves the adapter that created the session. Sessions are never
// handed to a different adapter than their creator.
func (uc *ChatUseCase) owner(sessionID string) (provider.ModelProvider, error) {
	uc.mu.Lock()
	name, ok := uc.owners[sessionID]
	uc.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return uc.reg.Get(name)
}

// PromptStreaming returns the raw delta stream for library callers.
func (uc *ChatUseCase) PromptStreaming(ctx context.Context, sessionID, text string) (*provider.TextStream, error) {
	p, err := uc.owner(sessionID)
	if err != nil {
		return nil, err
	}
	return p.PromptStreaming(ctx, sessionID, text)
}

// StreamPrompt pulls the stream to completion, forwarding each delta to
// onDelta, and returns the full reply text. Terminal errors are classified:
// fatal hardware faults trigger the recovery coordinator before the error
// is returned.
func (uc *ChatUseCase) StreamPrompt(ctx context.Context, sessionID, text string, onDelta func(delta string) error) (string, error) {
	stream, err := uc.PromptStreaming(ctx, sessionID, text)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var full []byte
	for {
		delta, rerr := stream.Recv()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return string(full), nil
			}
			uc.classify(ctx, rerr)
			return string(full), rerr
		}
		full = append(full, delta...)
		if cberr := onDelta(delta); cberr != nil {
			return string(full), fmt.Errorf("deliver delta: %w", cberr)
		}
	}
}

// classify routes fatal faults to the recovery coordinator. Recovery runs
// on a detached context so a dying request cannot abort it.
func (uc *ChatUseCase) classify(ctx context.Context, err error) {
	if !errors.Is(err, domain.ErrGPUContextLost) {
		return
	}
	performed, rerr := uc.rec.HandleFault(context.WithoutCancel(ctx), err)
	if performed && rerr != nil {
		uc.log.Error().Err(rerr).Msg("recovery after fatal fault failed")
	}
}

// DestroySession releases the session on its owning provider.
func (uc *ChatUseCase) DestroySession(ctx context.Context, sessionID string) error {
	uc.mu.Lock()
	name, ok := uc.owners[sessionID]
	delete(uc.owners, sessionID)
	uc.mu.Unlock()
	if !ok {
		return nil
	}
	p, err := uc.reg.Get(name)
	if err != nil {
		return nil
	}
	return p.DestroySession(ctx, sessionID)
}

// CloneSession branches the conversation when the owning adapter supports
// it.
func (uc *ChatUseCase) CloneSession(ctx context.Context, sessionID string) (*model.Session, error) {
	p, err := uc.owner(sessionID)
	if err != nil {
		return nil, err
	}
	cloner, ok := p.(provider.SessionCloner)
	if !ok {
		return nil, fmt.Errorf("%w: provider %s does not support cloning", domain.ErrInvalidArgument, p.Descriptor().Name)
	}
	sess, err := cloner.CloneSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	uc.mu.Lock()
	uc.owners[sess.ID] = sess.Provider
	uc.mu.Unlock()
	return sess, nil
}

// ResetApplication triggers the coordinator's irreversible full reset.
func (uc *ChatUseCase) ResetApplication(ctx context.Context) error {
	return uc.rec.ResetApplication(ctx)
}
