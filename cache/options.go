package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreOption is a functional option for configuring a cache store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for cache stores.
type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	namespace   string
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithTTL sets how long entries stay valid.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithNamespace scopes keys, usually to the schema name.
func WithNamespace(ns string) StoreOption {
	return func(c *storeConfig) {
		c.namespace = ns
	}
}
