package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/model"
	"chat-ai-orchestrator/internal/domain/ports/provider"
	"chat-ai-orchestrator/internal/infra/metrics"
)

// Selection priority, lowest number first. Registration order never
// matters; this table alone decides ordering.
var priorityTable = map[string]int{
	model.ProviderOnDevice:  0,
	model.ProviderWebGPU:    1,
	model.ProviderRemoteAPI: 2,
}

const unknownPriority = 1 << 10

func priorityOf(name string) int {
	if p, ok := priorityTable[name]; ok {
		return p
	}
	return unknownPriority
}

// Detection is one provider with its probe result attached.
type Detection struct {
	Provider     provider.ModelProvider
	Availability model.Availability
}

// Registry holds the registered backend adapters plus the single active
// slot, and performs priority-ordered auto-selection.
type Registry struct {
	log *zerolog.Logger

	mu        sync.Mutex
	providers map[string]provider.ModelProvider
	active    provider.ModelProvider
	subs      map[int]func(provider.ModelProvider)
	subSeq    int
}

func New(logger *zerolog.Logger) *Registry {
	return &Registry{
		log:       logger,
		providers: make(map[string]provider.ModelProvider),
		subs:      make(map[int]func(provider.ModelProvider)),
	}
}

// Register adds an adapter under its descriptor name.
func (r *Registry) Register(p provider.ModelProvider) error {
	name := p.Descriptor().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; ok {
		return fmt.Errorf("%w: provider %q", domain.ErrAlreadyExists, name)
	}
	r.providers[name] = p
	r.log.Debug().Str("provider", name).Msg("provider registered")
	return nil
}

// List returns all registered adapters sorted by the priority table.
func (r *Registry) List() []provider.ModelProvider {
	r.mu.Lock()
	out := make([]provider.ModelProvider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	r.mu.Unlock()
	sortByPriority(out)
	return out
}

// Get looks up an adapter by name.
func (r *Registry) Get(name string) (provider.ModelProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// Detect probes every registered adapter concurrently and returns the
// results re-sorted by the priority table (never by probe completion
// order).
func (r *Registry) Detect(ctx context.Context) []Detection {
	providers := r.List()
	out := make([]Detection, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p provider.ModelProvider) {
			defer wg.Done()
			out[i] = Detection{Provider: p, Availability: p.CheckAvailability(ctx)}
		}(i, p)
	}
	wg.Wait()
	sort.SliceStable(out, func(i, j int) bool {
		return priorityOf(out[i].Provider.Descriptor().Name) < priorityOf(out[j].Provider.Descriptor().Name)
	})
	return out
}

// AutoSelect walks the priority-sorted detection result and activates the
// first available adapter, initializing it first. Returns nil (and no
// active provider) when nothing is available. A candidate whose initialize
// fails is skipped.
func (r *Registry) AutoSelect(ctx context.Context) (provider.ModelProvider, error) {
	for _, d := range r.Detect(ctx) {
		if !d.Availability.Available {
			continue
		}
		name := d.Provider.Descriptor().Name
		if err := d.Provider.Initialize(ctx, provider.InitOptions{}); err != nil {
			r.log.Warn().Err(err).Str("provider", name).Msg("initialize failed during auto-select, trying next")
			continue
		}
		r.activate(d.Provider)
		metrics.ObserveAutoSelect(name)
		r.log.Info().Str("provider", name).Msg("provider auto-selected")
		return d.Provider, nil
	}
	metrics.ObserveAutoSelect("")
	r.log.Warn().Msg("no provider available")
	return nil, nil
}

// SetActive manually activates the named adapter. It fails when the name is
// unregistered or the adapter probes unavailable; a broken backend is never
// silently activated.
func (r *Registry) SetActive(ctx context.Context, name string) error {
	p, err := r.Get(name)
	if err != nil {
		return err
	}
	av := p.CheckAvailability(ctx)
	if !av.Available {
		return fmt.Errorf("%w: %s: %s", domain.ErrProviderUnavailable, name, av.Reason)
	}
	if err := p.Initialize(ctx, provider.InitOptions{}); err != nil {
		return err
	}
	r.activate(p)
	metrics.ObserveSwitch(name)
	r.log.Info().Str("provider", name).Msg("provider activated")
	return nil
}

// Active returns the current active adapter, or nil.
func (r *Registry) Active() provider.ModelProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ClearActive empties the active slot and notifies subscribers with nil.
func (r *Registry) ClearActive() {
	r.activate(nil)
}

// OnProviderChange subscribes to activation changes. The callback fires
// synchronously after every successful activate/switch (nil after a
// clear). The returned function unsubscribes.
func (r *Registry) OnProviderChange(cb func(provider.ModelProvider)) func() {
	r.mu.Lock()
	id := r.subSeq
	r.subSeq++
	r.subs[id] = cb
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Registry) activate(p provider.ModelProvider) {
	r.mu.Lock()
	r.active = p
	subs := make([]func(provider.ModelProvider), 0, len(r.subs))
	for _, cb := range r.subs {
		subs = append(subs, cb)
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	r.mu.Unlock()

	activeName := ""
	if p != nil {
		activeName = p.Descriptor().Name
	}
	metrics.SetActiveProvider(activeName, names)
	for _, cb := range subs {
		cb(p)
	}
}

// Dispose disposes every registered adapter best-effort and clears the
// active slot. One adapter's failure does not block the rest.
func (r *Registry) Dispose(ctx context.Context) error {
	providers := r.List()
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()

	var errs []error
	for _, p := range providers {
		if err := p.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispose %s: %w", p.Descriptor().Name, err))
		}
	}
	return errors.Join(errs...)
}

func sortByPriority(providers []provider.ModelProvider) {
	sort.SliceStable(providers, func(i, j int) bool {
		return priorityOf(providers[i].Descriptor().Name) < priorityOf(providers[j].Descriptor().Name)
	})
}
