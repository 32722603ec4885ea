package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/creastat/descriptorstore/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key prefix for retrievables
const retrievableKeyPrefix = "retrievable:"

// RedisStore implements Store using Redis string keys with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-based cache store. Keys are
// "retrievable:<namespace>:<id>".
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: retrievableKeyPrefix + namespace + ":",
		ttl:    ttl,
	}
}

// Get implements Store.
// Refreshes the TTL of every hit.
func (s *RedisStore) Get(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]*model.Retrievable, error) {
	found := make(map[uuid.UUID]*model.Retrievable, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(str), &entry); err != nil {
			continue
		}
		found[ids[i]] = entry.Retrievable()
		pipe.Expire(ctx, keys[i], s.ttl)
	}
	if len(found) > 0 {
		// TTL refresh failures only shorten the cache lifetime.
		_, _ = pipe.Exec(ctx)
	}
	return found, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, retrievables ...*model.Retrievable) error {
	if len(retrievables) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range retrievables {
			val, err := json.Marshal(newEntry(r))
			if err != nil {
				return err
			}
			pipe.Set(ctx, s.key(r.ID), val, s.ttl)
		}
		return nil
	})
	return err
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	return s.client.Del(ctx, keys...).Err()
}

// Clear implements Store.
// Removes every key of the namespace using SCAN.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a retrievable ID.
func (s *RedisStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}
