package presence

import (
	"time"

	"github.com/tokmz/spaces/pkg/errors"
)

const (
	DefaultMaxChatLength    = 500
	DefaultDirectoryTimeout = 3 * time.Second
	DefaultChatTimeout      = 2 * time.Second
	DefaultEmptySpaceTTL    = 5 * time.Minute
	DefaultSweepInterval    = time.Minute
)

// Config 在线状态层配置
type Config struct {
	// DirectoryTimeout 单次目录查询超时
	DirectoryTimeout time.Duration `mapstructure:"directory_timeout"`
	// ChatTimeout 聊天持久化超时，超时只记录日志不影响广播
	ChatTimeout time.Duration `mapstructure:"chat_timeout"`
	// MaxChatLength 聊天消息最大字符数
	MaxChatLength int `mapstructure:"max_chat_length"`
	// DefaultCapacity 空间未设置容量时使用，0 表示不限
	DefaultCapacity int `mapstructure:"default_capacity"`
	// EmptySpaceTTL 空间集合为空多久后回收
	EmptySpaceTTL time.Duration `mapstructure:"empty_space_ttl"`
	// SweepInterval 回收检查间隔
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		DirectoryTimeout: DefaultDirectoryTimeout,
		ChatTimeout:      DefaultChatTimeout,
		MaxChatLength:    DefaultMaxChatLength,
		EmptySpaceTTL:    DefaultEmptySpaceTTL,
		SweepInterval:    DefaultSweepInterval,
	}
}

var errInvalidConfig = errors.New(5200, "INVALID_CONFIG", "invalid presence config")

// Validate 校验配置
func (c *Config) Validate() error {
	if c.DirectoryTimeout <= 0 {
		return errInvalidConfig.WithMessage("directory_timeout must be positive")
	}
	if c.ChatTimeout <= 0 {
		return errInvalidConfig.WithMessage("chat_timeout must be positive")
	}
	if c.MaxChatLength <= 0 {
		return errInvalidConfig.WithMessage("max_chat_length must be positive")
	}
	if c.DefaultCapacity < 0 {
		return errInvalidConfig.WithMessage("default_capacity must not be negative")
	}
	if c.EmptySpaceTTL < 0 || c.SweepInterval < 0 {
		return errInvalidConfig.WithMessage("empty_space_ttl and sweep_interval must not be negative")
	}
	return nil
}
