package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SergeiKhy/linkgate/internal/models"
)

// CacheRepository кэш записей Link по короткому коду. Кэшируются только
// неизменяемые после создания поля (срок действия и хэш пароля меняться
// не могут); счётчик кликов из кэша никогда не читается
type CacheRepository interface {
	Get(ctx context.Context, key string) (*models.Link, error)
	Set(ctx context.Context, key string, link *models.Link, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

// cachedLink формат хранения в Redis: хэш пароля нужен резолверу,
// поэтому сериализуется отдельно от публичного JSON модели
type cachedLink struct {
	models.Link
	PasswordHash *string `json:"password_hash,omitempty"`
}

func (r *cacheRepository) Get(ctx context.Context, key string) (*models.Link, error) {
	data, err := r.redis.Client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, err
	}

	var cached cachedLink
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link: %w", err)
	}

	link := cached.Link
	link.PasswordHash = cached.PasswordHash
	return &link, nil
}

func (r *cacheRepository) Set(ctx context.Context, key string, link *models.Link, ttl time.Duration) error {
	data, err := json.Marshal(cachedLink{Link: *link, PasswordHash: link.PasswordHash})
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	return r.redis.Client.Set(ctx, r.key(key), data, ttl).Err()
}

func (r *cacheRepository) Delete(ctx context.Context, key string) error {
	return r.redis.Client.Del(ctx, r.key(key)).Err()
}

func (r *cacheRepository) key(key string) string {
	return "link:" + key
}
