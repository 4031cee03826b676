package spaces

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/logger"
)

// Engine 基于 gin 的 HTTP 引擎，支持优雅关机
type Engine struct {
	config *Config
	engine *gin.Engine
	log    logger.Logger

	mu     sync.Mutex
	server *http.Server
}

var ginModeOnce sync.Once

// NewEngine 创建 Engine，使用 Options 模式配置
func NewEngine(log logger.Logger, opts ...Option) *Engine {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if log == nil {
		log = logger.Nop()
	}

	// gin.SetMode 是全局状态，只设置一次
	ginModeOnce.Do(func() { gin.SetMode(config.Mode) })
	silenceGin()

	ginEngine := gin.New()
	if config.TrustedProxies != nil {
		if err := ginEngine.SetTrustedProxies(config.TrustedProxies); err != nil {
			log.Warn("set trusted proxies failed", zap.Error(err))
		}
	}

	return &Engine{
		engine: ginEngine,
		config: config,
		log:    log.Named("http"),
	}
}

// Use 注册全局中间件
func (e *Engine) Use(middlewares ...HandlerFunc) {
	e.engine.Use(wrapAll(middlewares)...)
}

// Group 返回路由组
func (e *Engine) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{group: e.engine.Group(path, wrapAll(middlewares)...)}
}

// RouterGroup 返回根路由组
func (e *Engine) RouterGroup() *RouterGroup {
	return &RouterGroup{group: &e.engine.RouterGroup}
}

// NoRoute 未匹配路由的处理
func (e *Engine) NoRoute(handler HandlerFunc) {
	e.engine.NoRoute(wrap(handler))
}

// Handler 返回 http.Handler，用于测试与自定义服务器
func (e *Engine) Handler() http.Handler {
	return e.engine
}

// Routes 已注册的路由
func (e *Engine) Routes() gin.RoutesInfo {
	return e.engine.Routes()
}

// Run 监听并服务，ctx 取消后执行优雅关机
func (e *Engine) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.config.Server.Addr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务，ctx 取消后执行优雅关机
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:        e.engine,
		ReadTimeout:    e.config.Server.ReadTimeout,
		WriteTimeout:   e.config.Server.WriteTimeout,
		IdleTimeout:    e.config.Server.IdleTimeout,
		MaxHeaderBytes: e.config.Server.MaxHeaderBytes,
	}
	e.mu.Lock()
	e.server = srv
	e.mu.Unlock()

	if e.config.Banner {
		e.printBanner(ln.Addr().String())
	}
	e.log.Info("server listening", zap.String("addr", ln.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		e.log.Info("shutting down server")
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Shutdown.Timeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		e.log.Error("server forced to close", zap.Error(err))
		return err
	}
	e.log.Info("server exited")
	return nil
}

// Shutdown 执行关机回调并关闭服务器
// BeforeShutdown 先于 http.Server.Shutdown 执行，被劫持的 WebSocket 连接不受后者管理
func (e *Engine) Shutdown(ctx context.Context) error {
	for _, fn := range e.config.Shutdown.BeforeShutdown {
		fn(ctx)
	}

	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	for _, fn := range e.config.Shutdown.AfterShutdown {
		fn()
	}
	return err
}
