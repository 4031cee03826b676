package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache 缓存接口
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// Serializer 序列化接口
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer JSON 序列化器（默认）
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// New 根据驱动类型创建缓存实例
func New(cfg *Config) (Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Serializer == nil {
		cfg.Serializer = JSONSerializer{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		c   Cache
		err error
	)
	switch cfg.Driver {
	case DriverRedis:
		c, err = newRedisCache(cfg)
	case DriverMemory:
		c, err = newMemoryCache(cfg)
	default:
		return nil, ErrCacheInvalidConfig.WithMessage(fmt.Sprintf("unsupported driver %q", cfg.Driver))
	}
	if err != nil {
		return nil, err
	}
	if cfg.Tracing {
		c = NewTracing(c)
	}
	return c, nil
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}
