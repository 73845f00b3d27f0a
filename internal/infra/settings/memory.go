package settings

import (
	"context"
	"sync"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/ports/repository"
)

var _ repository.SettingsStore = (*MemoryStore)(nil)

// MemoryStore is the in-process SettingsStore used when no Redis is
// configured, and by unit tests.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[string]string)}
}

func (m *MemoryStore) Load(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.store[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Save(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = value
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]string)
	return nil
}
