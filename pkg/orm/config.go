package orm

import (
	"fmt"
	"time"
)

// DBType 数据库类型
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 数据库配置
type Config struct {
	Type DBType `mapstructure:"type"` // mysql, postgres, sqlite, sqlserver
	DSN  string `mapstructure:"dsn"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	PrepareStmt bool `mapstructure:"prepare_stmt"`

	// LogLevel 1:Silent 2:Error 3:Warn 4:Info
	LogLevel      int           `mapstructure:"log_level"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`

	TablePrefix string `mapstructure:"table_prefix"`

	// Tracing 注册 OTel 回调插件
	Tracing bool `mapstructure:"tracing"`

	// Replicas 只读从库，配置后启用读写分离
	Replicas *ReplicaConfig `mapstructure:"replicas"`
}

// ReplicaConfig 读写分离配置
type ReplicaConfig struct {
	Sources      []string `mapstructure:"sources"` // 从库 DSN 列表
	Policy       string   `mapstructure:"policy"`  // random / round_robin
	MaxIdleConns int      `mapstructure:"max_idle_conns"`
	MaxOpenConns int      `mapstructure:"max_open_conns"`
}

// DefaultConfig 返回默认配置（本地 sqlite 文件）
func DefaultConfig() *Config {
	return &Config{
		Type:            SQLite,
		DSN:             "spaces.db",
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PrepareStmt:     true,
		LogLevel:        3,
		SlowThreshold:   200 * time.Millisecond,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Type {
	case MySQL, PostgreSQL, SQLite, SQLServer:
	default:
		return fmt.Errorf("orm: unsupported database type %q", c.Type)
	}
	if c.DSN == "" {
		return fmt.Errorf("orm: dsn is required")
	}
	if c.Replicas != nil && len(c.Replicas.Sources) == 0 {
		return fmt.Errorf("orm: replicas configured without sources")
	}
	return nil
}
