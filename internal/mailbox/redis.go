package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each slot as a string key. SET replaces a value in one
// step, which gives WriteAtomic its guarantee.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) key(slot string) (string, error) {
	if err := ValidateSlot(slot); err != nil {
		return "", err
	}
	if s.prefix == "" {
		return slot, nil
	}
	return s.prefix + ":" + slot, nil
}

func (s *RedisStore) WriteAtomic(ctx context.Context, slot string, content []byte) error {
	key, err := s.key(slot)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, content, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, slot string) (bool, error) {
	key, err := s.key(slot)
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Read(ctx context.Context, slot string) ([]byte, error) {
	key, err := s.key(slot)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, slot string) error {
	key, err := s.key(slot)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
