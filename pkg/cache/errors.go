package cache

import "github.com/tokmz/spaces/pkg/errors"

// 预定义错误
var (
	ErrCacheNotFound      = errors.New(3101, "CACHE_MISS", "cache key not found", 404)
	ErrCacheConnection    = errors.New(3102, "CACHE_CONNECTION", "cache connection failed", 500)
	ErrCacheSerialization = errors.New(3103, "CACHE_SERIALIZATION", "cache serialization failed", 500)
	ErrCacheInvalidConfig = errors.New(3104, "CACHE_INVALID_CONFIG", "cache invalid config", 500)
	ErrCacheOperation     = errors.New(3105, "CACHE_OPERATION", "cache operation failed", 500)
)
