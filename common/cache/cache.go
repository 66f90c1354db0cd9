package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("key not found in cache")
	ErrInvalidValue = errors.New("invalid value for cache")
	ErrClosed       = errors.New("cache is closed")
	ErrInvalidKey   = errors.New("invalid cache key")
)

// Cache is a durable keyed store. Values written with Set must be a string,
// a []byte or an encoding.BinaryMarshaler; Get accepts the matching pointer
// or an encoding.BinaryUnmarshaler.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Get(ctx context.Context, key string, value interface{}) error

	Delete(ctx context.Context, key string) error

	Clear(ctx context.Context) error

	Close() error
}

type Backend string

const (
	BackendFile       Backend = "file"
	BackendRedis      Backend = "redis"
	BackendClickHouse Backend = "clickhouse"
)

type Options struct {
	Backend Backend

	// DefaultTTL applies when Set is called with a zero ttl. Zero keeps
	// entries until they are overwritten or deleted.
	DefaultTTL time.Duration

	Dir string

	RedisURL string

	RedisPassword string

	RedisDB int
}

func DefaultOptions() Options {
	return Options{
		Backend: BackendFile,
		Dir:     ".cache/listings",
	}
}
