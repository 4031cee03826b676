package middleware

import (
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/tokmz/spaces"
)

// CORSConfig CORS 中间件配置
type CORSConfig struct {
	// AllowOrigins 允许的源列表，支持 "https://*.example.com" 通配
	AllowOrigins []string `mapstructure:"allow_origins"`

	// AllowHeaders 允许的请求头
	AllowHeaders []string `mapstructure:"allow_headers"`

	// AllowCredentials 是否允许携带凭证，为 true 时 AllowOrigins 不能为 ["*"]
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge 预检请求缓存时间
	MaxAge time.Duration `mapstructure:"max_age"`
}

// DefaultCORSConfig 返回默认配置（允许所有源）
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
}

// CORS 创建跨域中间件，预检请求直接返回 204
func CORS(cfgs ...*CORSConfig) spaces.HandlerFunc {
	cfg := DefaultCORSConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   cfg.AllowHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           int(cfg.MaxAge.Seconds()),
	})

	return func(ctx *spaces.Context) {
		r := ctx.Request()
		w := ctx.Writer()
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			c.HandlerFunc(w, r)
			w.WriteHeader(http.StatusNoContent)
			ctx.Abort()
			return
		}
		c.HandlerFunc(w, r)
		ctx.Next()
	}
}
