package spaces

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gin-gonic/gin"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"` // 默认 ":8080"
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// ShutdownConfig 关机配置
type ShutdownConfig struct {
	// Timeout 关机超时时间，默认 10 秒
	Timeout time.Duration `mapstructure:"timeout"`

	// BeforeShutdown 关机前回调，按注册顺序执行
	BeforeShutdown []func(ctx context.Context) `mapstructure:"-"`

	// AfterShutdown 关机后回调
	AfterShutdown []func() `mapstructure:"-"`
}

// Config HTTP 引擎配置
type Config struct {
	// Mode 运行模式：debug, release, test
	Mode string `mapstructure:"mode"`

	Server   ServerConfig   `mapstructure:"server"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`

	// TrustedProxies 信任的代理 IP
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	// Banner 启动时打印 banner 与路由表
	Banner bool `mapstructure:"banner"`
}

// Option 配置选项函数
type Option func(*Config)

// DefaultConfig 返回默认配置
// WriteTimeout 为 0：WebSocket 长连接由 ws 包自行控制写超时
func DefaultConfig() *Config {
	return &Config{
		Mode: gin.ReleaseMode,
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB
		},
		Shutdown: ShutdownConfig{
			Timeout: 10 * time.Second,
		},
		Banner: true,
	}
}

// WithConfig 整体替换配置，保留已注册的关机回调
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		before, after := c.Shutdown.BeforeShutdown, c.Shutdown.AfterShutdown
		*c = *cfg
		c.Shutdown.BeforeShutdown = append(before, cfg.Shutdown.BeforeShutdown...)
		c.Shutdown.AfterShutdown = append(after, cfg.Shutdown.AfterShutdown...)
	}
}

// Validate 校验运行模式、监听地址与关机超时
func (c *Config) Validate() error {
	switch c.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return fmt.Errorf("http: unknown mode %q", c.Mode)
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("http: server.addr: %w", err)
	}
	if c.Shutdown.Timeout <= 0 {
		return fmt.Errorf("http: shutdown.timeout must be positive")
	}
	return nil
}

// WithShutdownTimeout 设置关机超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Shutdown.Timeout = timeout
	}
}

// WithBeforeShutdown 添加关机前回调
func WithBeforeShutdown(fn func(ctx context.Context)) Option {
	return func(c *Config) {
		c.Shutdown.BeforeShutdown = append(c.Shutdown.BeforeShutdown, fn)
	}
}

// WithAfterShutdown 添加关机后回调
func WithAfterShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.AfterShutdown = append(c.Shutdown.AfterShutdown, fn)
	}
}

// WithoutBanner 不打印启动 banner
func WithoutBanner() Option {
	return func(c *Config) {
		c.Banner = false
	}
}
