package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotStaged is returned when a key has expired or was never saved
var ErrNotStaged = errors.New("no staged data under key")

const cacheKeyPrefix = "porter:staging:"

// CacheStorage stages uploads in redis with a TTL, so abandoned previews
// clean themselves up
type CacheStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStorage creates a redis-backed storage
func NewCacheStorage(client *redis.Client, ttl time.Duration) *CacheStorage {
	return &CacheStorage{client: client, ttl: ttl}
}

// Save stores data under a fresh key with the configured TTL
func (s *CacheStorage) Save(ctx context.Context, name string, data []byte) (string, error) {
	key := uuid.New().String()
	if err := s.client.Set(ctx, cacheKeyPrefix+key, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return key, nil
}

// Read returns the staged data, or ErrNotStaged after expiry
func (s *CacheStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotStaged, key)
		}
		return nil, fmt.Errorf("failed to read staged data %s: %w", key, err)
	}
	return data, nil
}

// Remove deletes the staged data
func (s *CacheStorage) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, cacheKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove staged data %s: %w", key, err)
	}
	return nil
}
