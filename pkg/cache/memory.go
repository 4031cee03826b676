package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache 进程内缓存，存储序列化后的字节，避免调用方共享可变对象
type memoryCache struct {
	cache      *gocache.Cache
	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration
}

func newMemoryCache(cfg *Config) (Cache, error) {
	return &memoryCache{
		cache:      gocache.New(cfg.Memory.DefaultExpiration, cfg.Memory.CleanupInterval),
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// Get 获取缓存
func (m *memoryCache) Get(_ context.Context, key string, value any) error {
	data, found := m.cache.Get(prefixed(m.keyPrefix, key))
	if !found {
		return ErrCacheNotFound
	}
	raw, ok := data.([]byte)
	if !ok {
		return ErrCacheSerialization.WithMessage("invalid cache data type")
	}
	if err := m.serializer.Unmarshal(raw, value); err != nil {
		return ErrCacheSerialization.WithError(err)
	}
	return nil
}

// Set 设置缓存
func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := m.serializer.Marshal(value)
	if err != nil {
		return ErrCacheSerialization.WithError(err)
	}
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	m.cache.Set(prefixed(m.keyPrefix, key), raw, ttl)
	return nil
}

// Delete 删除缓存
func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Delete(prefixed(m.keyPrefix, key))
	}
	return nil
}

// Exists 检查键是否存在
func (m *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, found := m.cache.Get(prefixed(m.keyPrefix, key))
	return found, nil
}

func (m *memoryCache) Ping(context.Context) error { return nil }

// Close 清空缓存
func (m *memoryCache) Close() error {
	m.cache.Flush()
	return nil
}
