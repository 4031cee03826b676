package middleware

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/spaces"
	"github.com/tokmz/spaces/pkg/tracing"
)

// TracingConfig 链路追踪中间件配置
type TracingConfig struct {
	// TracerName Tracer 名称（默认 "spaces.http"）
	TracerName string

	// ExcludePaths 排除的路径（不追踪）
	ExcludePaths []string
}

// Tracing 创建链路追踪中间件
// 提取上游 TraceContext，创建 Server Span，并把 TraceID 写入上下文
func Tracing(cfgs ...*TracingConfig) spaces.HandlerFunc {
	cfg := &TracingConfig{TracerName: "spaces.http"}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	skipMap := make(map[string]bool, len(cfg.ExcludePaths))
	for _, path := range cfg.ExcludePaths {
		skipMap[path] = true
	}

	return func(c *spaces.Context) {
		req := c.Request()
		if skipMap[req.URL.Path] {
			c.Next()
			return
		}

		// 每次请求获取 tracer，Provider 可能晚于中间件初始化
		tracer := otel.Tracer(cfg.TracerName)
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
			semconv.ServerAddress(req.Host),
			semconv.UserAgentOriginalKey.String(req.UserAgent()),
			attribute.String("http.client_ip", c.ClientIP()),
		}
		if full := c.FullPath(); full != "" {
			attrs = append(attrs, semconv.HTTPRouteKey.String(full))
		}
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, route),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		spaces.SetContextTraceID(c, tracing.TraceID(ctx))
		c.SetRequestContext(ctx)
		// 响应头需在写出前注入
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer().Header()))

		c.Next()

		status := c.Writer().Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
		if sub := spaces.GetContextSubject(c); sub != "" {
			span.SetAttributes(attribute.String("enduser.id", sub))
		}
	}
}
