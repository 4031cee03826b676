package config

import "github.com/tokmz/spaces/pkg/errors"

var (
	// ErrConfigNotFound 配置文件不存在且未设置 WithOptional
	ErrConfigNotFound = errors.New(3001, "CONFIG_NOT_FOUND", "config file not found", 500)
	// ErrConfigReadFailed 配置文件存在但无法解析
	ErrConfigReadFailed = errors.New(3002, "CONFIG_READ_FAILED", "config file unreadable", 500)
)
