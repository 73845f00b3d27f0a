package recovery

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/infra/metrics"
)

// State of the coordinator.
type State string

const (
	StateNormal     State = "normal"
	StateRecovering State = "recovering"
)

// Coordinator serializes recovery after a fatal backend fault (e.g. a lost
// GPU context). While a recovery is in flight, further fault signals are
// ignored; the recovery callback runs exactly once per fault window.
type Coordinator struct {
	log       *zerolog.Logger
	onRecover func(ctx context.Context) error
	onReset   func(ctx context.Context) error

	mu    sync.Mutex
	state State
}

// New builds a coordinator. onRecover re-establishes a working provider;
// onReset performs the irreversible full application reset.
func New(onRecover, onReset func(ctx context.Context) error, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		log:       logger,
		onRecover: onRecover,
		onReset:   onReset,
		state:     StateNormal,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleFault runs the recovery callback unless one is already in flight.
// It reports whether this call performed the recovery, and the callback's
// error (never swallowed).
func (c *Coordinator) HandleFault(ctx context.Context, cause error) (bool, error) {
	c.mu.Lock()
	if c.state == StateRecovering {
		c.mu.Unlock()
		metrics.ObserveRecoveryDeduped()
		c.log.Debug().Err(cause).Msg("fault ignored, recovery already in flight")
		return false, nil
	}
	c.state = StateRecovering
	c.mu.Unlock()

	c.log.Warn().Err(cause).Msg("fatal backend fault, starting recovery")
	err := c.onRecover(ctx)

	c.mu.Lock()
	c.state = StateNormal
	c.mu.Unlock()

	metrics.ObserveRecovery(err == nil)
	if err != nil {
		c.log.Error().Err(err).Msg("recovery failed")
		return true, err
	}
	c.log.Info().Msg("recovery complete")
	return true, nil
}

// ResetApplication invokes the full-reset callback. One-way: the callback
// is expected to clear persisted state and restart the process.
func (c *Coordinator) ResetApplication(ctx context.Context) error {
	c.log.Warn().Msg("full application reset requested")
	return c.onReset(ctx)
}
