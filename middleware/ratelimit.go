package middleware

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tokmz/spaces"
	"github.com/tokmz/spaces/pkg/errors"
	"github.com/tokmz/spaces/pkg/logger"
)

// ErrTooManyRequests 请求过于频繁
var ErrTooManyRequests = errors.New(1029, "TOO_MANY_REQUESTS", "too many requests", http.StatusTooManyRequests)

// RateLimiterConfig 限流中间件配置
type RateLimiterConfig struct {
	// RequestsPerSecond 每个 key 每秒允许的请求数
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`

	// Burst 突发容量
	Burst int `mapstructure:"burst"`

	// KeyFunc 限流 key（默认客户端 IP）
	KeyFunc func(c *spaces.Context) string `mapstructure:"-"`

	// BucketExpiry 空闲多久后清理限流器
	BucketExpiry time.Duration `mapstructure:"bucket_expiry"`

	// Logger 日志实例
	Logger logger.Logger `mapstructure:"-"`
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter 按 key 分桶的限流器
type keyedLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	expiry  time.Duration
	now     func() time.Time
	sweep   time.Time
}

func newKeyedLimiter(rps float64, burst int, expiry time.Duration) *keyedLimiter {
	return &keyedLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(rps),
		burst:   burst,
		expiry:  expiry,
		now:     time.Now,
	}
}

func (k *keyedLimiter) allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	// 惰性清理过期桶
	if now.Sub(k.sweep) > k.expiry {
		for key, e := range k.entries {
			if now.Sub(e.lastSeen) > k.expiry {
				delete(k.entries, key)
			}
		}
		k.sweep = now
	}

	e, ok := k.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (k *keyedLimiter) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

// RateLimiter 创建按客户端限流的中间件，用于限制握手与查询频率
func RateLimiter(cfg *RateLimiterConfig) spaces.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond)
	}
	if cfg.BucketExpiry <= 0 {
		cfg.BucketExpiry = 10 * time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *spaces.Context) string { return c.ClientIP() }
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	limiter := newKeyedLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.BucketExpiry)

	return func(c *spaces.Context) {
		key := cfg.KeyFunc(c)
		if !limiter.allow(key) {
			log.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Request().URL.Path),
			)
			c.Header("Retry-After", "1")
			c.RespondError(ErrTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
