package redis

import (
	"context"
	"errors"

	"chat-ai-orchestrator/internal/domain"
	"chat-ai-orchestrator/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.SettingsStore = (*SettingsRepo)(nil)

const settingsKeyPrefix = "setting:"

// SettingsRepo persists adapter settings in Redis. Settings have no TTL;
// they live until overwritten or cleared.
type SettingsRepo struct {
	client RedisClient
}

func NewSettingsRepo(client RedisClient) *SettingsRepo {
	return &SettingsRepo{client: client}
}

func (s *SettingsRepo) Load(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, settingsKeyPrefix+key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (s *SettingsRepo) Save(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, settingsKeyPrefix+key, value, 0)
}

func (s *SettingsRepo) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, settingsKeyPrefix+key)
}

func (s *SettingsRepo) Clear(ctx context.Context) error {
	keys, err := s.client.Keys(ctx, settingsKeyPrefix+"*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...)
}
