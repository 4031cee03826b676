package ws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Config WebSocket 配置
type Config struct {
	// 连接配置
	MaxConnections   int           `mapstructure:"max_connections"`   // 最大连接数
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`  // 读缓冲区大小
	WriteBufferSize  int           `mapstructure:"write_buffer_size"` // 写缓冲区大小
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // 握手超时时间
	MaxMessageSize   int64         `mapstructure:"max_message_size"`  // 最大消息大小

	// 心跳配置
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"` // 心跳间隔
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`  // 心跳超时
	WriteWait         time.Duration `mapstructure:"write_wait"`         // 单帧写超时

	// 发送队列大小，队列满视为慢连接
	MessageQueueSize int `mapstructure:"message_queue_size"`

	// 入站限流
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Upgrader 配置
	AllowedOrigins    []string                 `mapstructure:"allowed_origins"` // Origin 白名单，"*" 允许所有
	EnableCompression bool                     `mapstructure:"enable_compression"`
	CheckOrigin       func(*http.Request) bool `mapstructure:"-"`

	// 监控
	Metrics Metrics `mapstructure:"-"`
}

// RateLimitConfig 每个连接的入站限流（令牌桶）
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:    10000,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		HandshakeTimeout:  10 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB，信令 SDP 足够
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
		WriteWait:         10 * time.Second,
		MessageQueueSize:  256,
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 30,
			Burst:             60,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: MaxConnections must be positive, got %d", ErrInvalidConfig, c.MaxConnections)
	}
	if c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: buffer sizes must be positive", ErrInvalidConfig)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive, got %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: HeartbeatInterval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("%w: HeartbeatTimeout (%v) must be greater than HeartbeatInterval (%v)",
			ErrInvalidConfig, c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: WriteWait must be positive, got %v", ErrInvalidConfig, c.WriteWait)
	}
	if c.MessageQueueSize <= 0 {
		return fmt.Errorf("%w: MessageQueueSize must be positive, got %d", ErrInvalidConfig, c.MessageQueueSize)
	}
	if c.RateLimit.Enabled && (c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("%w: RateLimit requires positive MessagesPerSecond and Burst", ErrInvalidConfig)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithConfig 以给定配置为基础
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		*c = *cfg
	}
}

// WithMaxConnections 设置最大连接数
func WithMaxConnections(max int) Option {
	return func(c *Config) {
		c.MaxConnections = max
	}
}

// WithHeartbeat 设置心跳间隔与超时
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
		c.HeartbeatTimeout = timeout
	}
}

// WithMessageSizeLimit 设置消息大小限制
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithMessageQueueSize 设置发送队列大小
func WithMessageQueueSize(size int) Option {
	return func(c *Config) {
		c.MessageQueueSize = size
	}
}

// WithRateLimit 设置入站限流
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = RateLimitConfig{Enabled: true, MessagesPerSecond: perSecond, Burst: burst}
	}
}

// WithoutRateLimit 关闭入站限流
func WithoutRateLimit() Option {
	return func(c *Config) {
		c.RateLimit.Enabled = false
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.CheckOrigin = fn
	}
}

// WithCheckOriginWhitelist 设置 Origin 白名单
// 示例：WithCheckOriginWhitelist([]string{"https://example.com", "https://app.example.com"})
func WithCheckOriginWhitelist(allowedOrigins []string) Option {
	return func(c *Config) {
		c.AllowedOrigins = allowedOrigins
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境）
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// WithMetrics 设置监控
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// defaultCheckOrigin 默认 Origin 检查（同源策略）
// 无 Origin 头的非浏览器客户端放行
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// createWhitelistChecker 创建白名单检查器
func createWhitelistChecker(allowedOrigins []string) func(*http.Request) bool {
	whitelist := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		whitelist[strings.TrimRight(origin, "/")] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 白名单模式下拒绝空 Origin
			return false
		}
		return whitelist[origin]
	}
}

// newUpgrader 创建升级器
func newUpgrader(c *Config) *websocket.Upgrader {
	checkOrigin := c.CheckOrigin
	if checkOrigin == nil {
		if len(c.AllowedOrigins) > 0 {
			checkOrigin = createWhitelistChecker(c.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:    c.ReadBufferSize,
		WriteBufferSize:   c.WriteBufferSize,
		HandshakeTimeout:  c.HandshakeTimeout,
		CheckOrigin:       checkOrigin,
		EnableCompression: c.EnableCompression,
	}
}
