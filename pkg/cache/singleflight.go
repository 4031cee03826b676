package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader 读穿透加载器
// 未命中时同一 key 的并发请求只执行一次 fn（防击穿），结果写回缓存
type Loader[T any] struct {
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewLoader 创建读穿透加载器
func NewLoader[T any](c Cache, ttl time.Duration) *Loader[T] {
	return &Loader[T]{cache: c, ttl: ttl}
}

// Load 读取缓存，未命中时调用 fn 加载
// 缓存本身的读写错误不影响加载结果
func (l *Loader[T]) Load(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	if err := l.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		val, err := fn(ctx)
		if err != nil {
			return val, err
		}
		_ = l.cache.Set(ctx, key, val, l.ttl)
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	val, ok := v.(T)
	if !ok {
		var zero T
		return zero, ErrCacheSerialization.WithMessage("invalid result type")
	}
	return val, nil
}

// Invalidate 删除缓存并丢弃进行中的加载
func (l *Loader[T]) Invalidate(ctx context.Context, key string) error {
	l.group.Forget(key)
	return l.cache.Delete(ctx, key)
}

// IsMiss 是否为未命中错误
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheNotFound)
}
