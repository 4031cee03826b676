package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const cacheTracerName = "spaces.cache"

// tracedCache 链路追踪缓存装饰器
type tracedCache struct {
	Cache
	tracer trace.Tracer
}

// NewTracing 创建带链路追踪的缓存实例
func NewTracing(c Cache) Cache {
	return &tracedCache{Cache: c, tracer: otel.Tracer(cacheTracerName)}
}

func (t *tracedCache) wrap(ctx context.Context, op string, key string, fn func(ctx context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.String("cache.operation", op),
		),
	)
	defer span.End()

	err := fn(ctx)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case IsMiss(err):
		span.SetAttributes(attribute.Bool("cache.miss", true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (t *tracedCache) Get(ctx context.Context, key string, value any) error {
	return t.wrap(ctx, "get", key, func(ctx context.Context) error {
		return t.Cache.Get(ctx, key, value)
	})
}

func (t *tracedCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return t.wrap(ctx, "set", key, func(ctx context.Context) error {
		return t.Cache.Set(ctx, key, value, ttl)
	})
}

func (t *tracedCache) Delete(ctx context.Context, keys ...string) error {
	key := ""
	if len(keys) > 0 {
		key = keys[0]
	}
	return t.wrap(ctx, "delete", key, func(ctx context.Context) error {
		return t.Cache.Delete(ctx, keys...)
	})
}
