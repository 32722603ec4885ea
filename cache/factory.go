package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/creastat/descriptorstore"
	"github.com/redis/go-redis/v9"
)

// StoreType represents the type of cache store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// Connection parameters understood by FromParameters.
const (
	ParamCache         = "cache"
	ParamTTL           = "cache.ttl"
	ParamRedisAddr     = "cache.redis.addr"
	ParamRedisPassword = "cache.redis.password"
	ParamRedisDB       = "cache.redis.db"
)

// NewStore creates a new Store based on the given type.
// For Redis, requires WithRedisClient option.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}
	if config.ttl <= 0 {
		config.ttl = DefaultTTL
	}

	switch storeType {
	case StoreTypeMemory:
		return NewMemoryStore(config.ttl), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, descriptorstore.ErrInvalidConfig
		}
		return NewRedisStore(config.redisClient, config.namespace, config.ttl), nil

	default:
		return nil, descriptorstore.ErrInvalidStoreType
	}
}

// FromParameters builds the store configured in a connection's parameters.
// It returns a nil Store when caching is not enabled.
func FromParameters(namespace string, params map[string]string) (Store, error) {
	kind := strings.ToLower(strings.TrimSpace(params[ParamCache]))
	if kind == "" || kind == "none" {
		return nil, nil
	}

	opts := []StoreOption{WithNamespace(namespace)}
	if raw := params[ParamTTL]; raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", ParamTTL, raw, descriptorstore.ErrInvalidConfig)
		}
		opts = append(opts, WithTTL(ttl))
	}

	if StoreType(kind) == StoreTypeRedis {
		addr := params[ParamRedisAddr]
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		db := 0
		if raw := params[ParamRedisDB]; raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", ParamRedisDB, raw, descriptorstore.ErrInvalidConfig)
			}
			db = n
		}
		opts = append(opts, WithRedisClient(redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: params[ParamRedisPassword],
			DB:       db,
		})))
	}
	return NewStore(StoreType(kind), opts...)
}
