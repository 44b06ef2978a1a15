package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where the settings blob lives.
const DefaultRedisKey = "modwatch:settings"

// blob is the persisted settings shape, a single JSON value so the whole
// document is replaced atomically on every change.
type blob struct {
	Channels []string `json:"channels"`
}

// RedisStore persists settings in Redis, for deployments where the console
// runs on more than one machine.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store on an existing client. An empty key falls
// back to DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) load(ctx context.Context) (blob, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return blob{}, nil
	}
	if err != nil {
		return blob{}, fmt.Errorf("failed to load settings: %w", err)
	}

	var b blob
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return blob{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return b, nil
}

func (s *RedisStore) save(ctx context.Context, b blob) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Channels implements Store.
func (s *RedisStore) Channels(ctx context.Context) ([]string, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return b.Channels, nil
}

// AddChannel implements Store.
func (s *RedisStore) AddChannel(ctx context.Context, name string) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, ch := range b.Channels {
		if ch == name {
			return nil
		}
	}
	b.Channels = append(b.Channels, name)
	return s.save(ctx, b)
}

// RemoveChannel implements Store.
func (s *RedisStore) RemoveChannel(ctx context.Context, name string) error {
	b, err := s.load(ctx)
	if err != nil {
		return err
	}
	filtered := b.Channels[:0]
	found := false
	for _, ch := range b.Channels {
		if ch == name {
			found = true
			continue
		}
		filtered = append(filtered, ch)
	}
	if !found {
		return nil
	}
	b.Channels = filtered
	return s.save(ctx, b)
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
