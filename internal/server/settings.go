package server

import (
	"fmt"
	"time"

	"github.com/tokmz/spaces"
	"github.com/tokmz/spaces/middleware"
	"github.com/tokmz/spaces/pkg/auth"
	"github.com/tokmz/spaces/pkg/cache"
	"github.com/tokmz/spaces/pkg/chatlog"
	"github.com/tokmz/spaces/pkg/config"
	"github.com/tokmz/spaces/pkg/logger"
	"github.com/tokmz/spaces/pkg/orm"
	"github.com/tokmz/spaces/pkg/presence"
	"github.com/tokmz/spaces/pkg/tracing"
	"github.com/tokmz/spaces/pkg/ws"
)

// EnvPrefix 环境变量前缀，如 SPACES_HTTP_SERVER_ADDR
const EnvPrefix = "SPACES"

// Settings 服务全部配置
type Settings struct {
	HTTP      spaces.Config        `mapstructure:"http"`
	Log       logger.Settings      `mapstructure:"log"`
	Tracing   tracing.Config       `mapstructure:"tracing"`
	Database  DatabaseSettings     `mapstructure:"database"`
	Cache     CacheSettings        `mapstructure:"cache"`
	Directory DirectorySettings    `mapstructure:"directory"`
	Chat      chatlog.Config       `mapstructure:"chat"`
	Presence  presence.Config      `mapstructure:"presence"`
	WS        ws.Config            `mapstructure:"ws"`
	Auth      auth.Config          `mapstructure:"auth"`
	Metrics   MetricsSettings      `mapstructure:"metrics"`
	CORS      middleware.CORSConfig `mapstructure:"cors"`
	RateLimit RateLimitSettings    `mapstructure:"rate_limit"`
}

// DatabaseSettings 数据库配置
type DatabaseSettings struct {
	Enabled bool       `mapstructure:"enabled"`
	ORM     orm.Config `mapstructure:",squash"`
}

// CacheSettings 目录缓存配置
type CacheSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Cache   cache.Config  `mapstructure:",squash"`
}

// DirectorySettings 目录数据源
type DirectorySettings struct {
	Driver  string `mapstructure:"driver"`  // memory / gorm
	Seed    string `mapstructure:"seed"`    // YAML 种子文件，memory 必填，gorm 可选
	Migrate bool   `mapstructure:"migrate"` // 启动时自动迁移
}

// MetricsSettings Prometheus 配置
type MetricsSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// RateLimitSettings 握手与查询接口按 IP 限流
type RateLimitSettings struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DefaultSettings 默认配置：内存目录、无持久化、开启指标
func DefaultSettings() *Settings {
	db := orm.DefaultConfig()
	c := cache.DefaultConfig()
	return &Settings{
		HTTP:      *spaces.DefaultConfig(),
		Log:       logger.Settings{Level: "info", Format: "json"},
		Tracing:   *tracing.DefaultConfig(),
		Database:  DatabaseSettings{ORM: *db},
		Cache:     CacheSettings{TTL: time.Minute, Cache: *c},
		Directory: DirectorySettings{Driver: "memory", Seed: "configs/seed.yaml"},
		Chat:      *chatlog.DefaultConfig(),
		Presence:  *presence.DefaultConfig(),
		WS:        *ws.DefaultConfig(),
		Metrics:   MetricsSettings{Enabled: true, Path: "/metrics", Namespace: "spaces"},
		CORS:      *middleware.DefaultCORSConfig(),
		RateLimit: RateLimitSettings{Enabled: true, RequestsPerSecond: 5, Burst: 20},
	}
}

// defaults 注册到 viper 的默认值，使对应环境变量可被识别
func defaults(s *Settings) map[string]any {
	return map[string]any{
		"http.mode":                 s.HTTP.Mode,
		"http.server.addr":          s.HTTP.Server.Addr,
		"http.banner":               s.HTTP.Banner,
		"log.level":                 s.Log.Level,
		"log.format":                s.Log.Format,
		"log.file":                  s.Log.File,
		"tracing.enabled":           s.Tracing.Enabled,
		"tracing.exporter":          s.Tracing.Exporter,
		"tracing.endpoint":          s.Tracing.Endpoint,
		"database.enabled":          s.Database.Enabled,
		"database.type":             string(s.Database.ORM.Type),
		"database.dsn":              s.Database.ORM.DSN,
		"cache.enabled":             s.Cache.Enabled,
		"cache.driver":              string(s.Cache.Cache.Driver),
		"directory.driver":          s.Directory.Driver,
		"directory.seed":            s.Directory.Seed,
		"directory.migrate":         s.Directory.Migrate,
		"chat.driver":               string(s.Chat.Driver),
		"presence.max_chat_length":  s.Presence.MaxChatLength,
		"presence.default_capacity": s.Presence.DefaultCapacity,
		"ws.max_connections":        s.WS.MaxConnections,
		"auth.secret":               s.Auth.Secret,
		"auth.required":             s.Auth.Required,
		"metrics.enabled":           s.Metrics.Enabled,
		"rate_limit.enabled":        s.RateLimit.Enabled,
	}
}

// Validate 校验配置
func (s *Settings) Validate() error {
	return s.validate(true)
}

// validate directory 为 false 时跳过目录配置，用于注入外部目录
func (s *Settings) validate(directory bool) error {
	if err := s.HTTP.Validate(); err != nil {
		return err
	}
	if _, err := s.Log.Config(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := s.Tracing.Validate(); err != nil {
		return err
	}
	if directory {
		switch s.Directory.Driver {
		case "memory":
			if s.Directory.Seed == "" {
				return fmt.Errorf("directory: memory driver requires a seed file")
			}
		case "gorm":
			if !s.Database.Enabled {
				return fmt.Errorf("directory: gorm driver requires database.enabled")
			}
		default:
			return fmt.Errorf("directory: unsupported driver %q", s.Directory.Driver)
		}
	}
	if s.Database.Enabled {
		if err := s.Database.ORM.Validate(); err != nil {
			return err
		}
	}
	if s.Chat.Driver == chatlog.DriverGorm && !s.Database.Enabled {
		return fmt.Errorf("chat: gorm driver requires database.enabled")
	}
	if err := s.Chat.Validate(); err != nil {
		return err
	}
	if s.Cache.Enabled {
		if err := s.Cache.Cache.Validate(); err != nil {
			return err
		}
	}
	if err := s.Presence.Validate(); err != nil {
		return err
	}
	if err := s.WS.Validate(); err != nil {
		return err
	}
	return s.Auth.Validate()
}

// LoadSettings 读取配置文件与环境变量
// path 为空时按 ./configs/spaces.yaml 查找，文件缺失时仅使用默认值与环境变量
func LoadSettings(path string, opts ...config.Option) (*Settings, *config.Config, error) {
	s := DefaultSettings()

	loc := config.WithSearch("spaces", "yaml", ".", "./configs")
	if path != "" {
		loc = config.WithFile(path)
	}
	base := []config.Option{loc, config.WithOptional(), config.WithDefaults(defaults(s)), config.WithEnv(EnvPrefix)}
	cfg := config.New(append(base, opts...)...)
	if err := cfg.Load(); err != nil {
		return nil, nil, err
	}
	if err := cfg.Unmarshal(s); err != nil {
		return nil, nil, fmt.Errorf("settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}
