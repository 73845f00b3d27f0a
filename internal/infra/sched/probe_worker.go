package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/infra/registry"
)

// ProbeWorker periodically re-probes every registered provider so the
// availability gauges stay fresh. Observability only: it never changes the
// active provider.
type ProbeWorker struct {
	interval time.Duration
	reg      *registry.Registry
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProbeWorker builds a worker that re-probes every `interval`.
// If interval <= 0 it defaults to 1 minute.
func NewProbeWorker(interval time.Duration, reg *registry.Registry, logger *zerolog.Logger) *ProbeWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProbeWorker{
		interval: interval,
		reg:      reg,
		log:      logger,
		done:     make(chan struct{}),
	}
}

// Start begins the probe loop in a background goroutine. Calling Start
// again while running has no effect.
func (w *ProbeWorker) Start(parentCtx context.Context) {
	if w.ctx != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	w.ctx = ctx
	w.cancel = cancel
	go w.loop()
}

func (w *ProbeWorker) loop() {
	ticker := time.NewTicker(w.interval)
	defer func() {
		ticker.Stop()
		close(w.done)
	}()

	w.log.Debug().Dur("interval", w.interval).Msg("probe worker started")
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
			detections := w.reg.Detect(runCtx)
			cancel()
			for _, d := range detections {
				w.log.Trace().
					Str("provider", d.Provider.Descriptor().Name).
					Bool("available", d.Availability.Available).
					Str("reason", d.Availability.Reason).
					Msg("probe")
			}
		}
	}
}

// Stop cancels the worker and waits for the loop to finish. Idempotent.
func (w *ProbeWorker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.ctx = nil
	w.cancel = nil
	w.done = make(chan struct{})
}
