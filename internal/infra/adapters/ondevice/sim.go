package ondevice

import (
	"context"
	"strings"
	"sync"
	"time"

	"chat-ai-orchestrator/internal/domain/model"
)

var _ Runtime = (*SimRuntime)(nil)

// SimRuntime stands in for the platform model when no real binding is
// compiled in. It answers deterministically (word-tokenized echo) so the
// adapter behaves end to end in dev setups and tests.
type SimRuntime struct {
	mu         sync.Mutex
	capability Capability
	reply      func(prompt string) string
	tokenDelay time.Duration
}

type SimOption func(*SimRuntime)

// WithCapability overrides the reported capability state.
func WithCapability(c Capability) SimOption {
	return func(r *SimRuntime) { r.capability = c }
}

// WithReply overrides the canned reply function.
func WithReply(fn func(prompt string) string) SimOption {
	return func(r *SimRuntime) { r.reply = fn }
}

// WithTokenDelay spaces emitted tokens out in time (dev realism only).
func WithTokenDelay(d time.Duration) SimOption {
	return func(r *SimRuntime) { r.tokenDelay = d }
}

func NewSimRuntime(opts ...SimOption) *SimRuntime {
	r := &SimRuntime{
		capability: Capability{State: CapabilityReady},
		reply: func(prompt string) string {
			return "You said: " + prompt
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *SimRuntime) Capability(ctx context.Context) Capability {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capability
}

// SetCapability lets tests flip the runtime state between probes.
func (r *SimRuntime) SetCapability(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capability = c
}

func (r *SimRuntime) NewSession(ctx context.Context, opts NativeOptions) (NativeSession, error) {
	return &simSession{rt: r, opts: opts}, nil
}

func (r *SimRuntime) Progress() *model.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capability.State != CapabilityNeedsDownload {
		return nil
	}
	return &model.Progress{
		Phase:      model.PhaseDownloading,
		Percentage: 0,
		TotalBytes: r.capability.DownloadSizeBytes,
	}
}

type simSession struct {
	rt   *SimRuntime
	opts NativeOptions

	mu      sync.Mutex
	prompts []string

	// Test hooks: fail after emitting failAfter deltas.
	failAfter int
	failWith  error
}

func (s *simSession) Prompt(ctx context.Context, text string, emit func(string) error) error {
	s.mu.Lock()
	s.prompts = append(s.prompts, text)
	reply := s.rt.reply(text)
	failAfter, failWith := s.failAfter, s.failWith
	delay := s.rt.tokenDelay
	s.mu.Unlock()

	tokens := tokenize(reply)
	for i, tok := range tokens {
		if failWith != nil && i >= failAfter {
			return failWith
		}
		if err := emit(tok); err != nil {
			return err
		}
		if delay > 0 && i < len(tokens)-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (s *simSession) Clone(ctx context.Context) (NativeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &simSession{
		rt:      s.rt,
		opts:    s.opts,
		prompts: append([]string(nil), s.prompts...),
	}, nil
}

func (s *simSession) Destroy(ctx context.Context) error { return nil }

// tokenize splits text into word tokens, each carrying its leading space,
// so concatenating the deltas reproduces the text exactly.
func tokenize(text string) []string {
	words := strings.Split(text, " ")
	out := make([]string, 0, len(words))
	for i, w := range words {
		if i == 0 {
			out = append(out, w)
			continue
		}
		out = append(out, " "+w)
	}
	return out
}
