package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"autopilot/internal/config"
)

// Store is a byte-valued key/value store with optional expiry.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// FromConfig returns a RedisStore when an address is configured, else a MemoryStore.
func FromConfig(cfg config.RedisConfig) Store {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return NewMemoryStore()
	}
	return NewRedisStore(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
