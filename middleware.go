package spaces

import (
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/errors"
	"github.com/tokmz/spaces/pkg/logger"
)

// LoggerConfig 访问日志配置
type LoggerConfig struct {
	// ExcludePaths 不记录的路径，通常是健康检查与指标
	ExcludePaths []string
	// SkipFunc 返回 true 时不记录
	SkipFunc func(c *Context) bool
}

func (cfg *LoggerConfig) skipper() func(*Context) bool {
	excluded := make(map[string]struct{}, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		excluded[p] = struct{}{}
	}
	return func(c *Context) bool {
		if _, ok := excluded[c.Request().URL.Path]; ok {
			return true
		}
		return cfg.SkipFunc != nil && cfg.SkipFunc(c)
	}
}

// Logger 访问日志，每个请求结束后记录一条 "request"
// 5xx 记 Error，4xx 记 Warn。WebSocket 握手在升级完成时记录，route 为路由模板
func Logger(log logger.Logger, cfgs ...*LoggerConfig) HandlerFunc {
	cfg := &LoggerConfig{}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	skip := cfg.skipper()

	return func(c *Context) {
		if skip(c) {
			c.Next()
			return
		}
		start := time.Now()
		req := c.Request()

		c.Next()

		status := c.Writer().Status()
		fields := make([]zap.Field, 0, 8)
		fields = append(fields,
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
		if sub := GetContextSubject(c); sub != "" {
			fields = append(fields, zap.String("subject", sub))
		}
		if req.Header.Get("Upgrade") != "" {
			fields = append(fields, zap.Bool("upgrade", true))
		}

		ctx := c.RequestContext()
		switch {
		case status >= 500:
			log.ErrorContext(ctx, "request", fields...)
		case status >= 400:
			log.WarnContext(ctx, "request", fields...)
		default:
			log.InfoContext(ctx, "request", fields...)
		}
	}
}

// Recovery 捕获 handler panic 并返回 500
// 对端已断开时只记录一行，不再写响应
func Recovery(log logger.Logger) HandlerFunc {
	return func(c *Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			c.Abort()
			req := c.Request()
			if peerGone(r) {
				log.Warn("client went away", zap.String("path", req.URL.Path), zap.Any("error", r))
				return
			}

			log.Error("panic recovered",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("error", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
			// 已写出响应或连接已被 WebSocket 劫持
			if !c.Writer().Written() {
				c.RespondError(errors.ErrServer)
			}
		}()
		c.Next()
	}
}

func peerGone(r any) bool {
	err, ok := r.(error)
	return ok && (stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET))
}
