package cache

import "time"

// DriverType 驱动类型
type DriverType string

const (
	DriverRedis  DriverType = "redis"
	DriverMemory DriverType = "memory"
)

// RedisMode Redis 模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// Config 缓存配置
type Config struct {
	Driver     DriverType    `mapstructure:"driver"`
	Redis      *RedisConfig  `mapstructure:"redis"`
	Memory     *MemoryConfig `mapstructure:"memory"`
	KeyPrefix  string        `mapstructure:"key_prefix"`  // 键前缀（避免冲突）
	DefaultTTL time.Duration `mapstructure:"default_ttl"` // Set 时 ttl 为 0 使用此值
	Tracing    bool          `mapstructure:"tracing"`     // 是否包装链路追踪

	Serializer Serializer `mapstructure:"-"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Mode         RedisMode     `mapstructure:"mode"`
	Addr         string        `mapstructure:"addr"`  // 单机
	Addrs        []string      `mapstructure:"addrs"` // 集群/哨兵
	MasterName   string        `mapstructure:"master_name"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MemoryConfig 内存缓存配置
type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Driver:     DriverMemory,
		KeyPrefix:  "spaces:",
		Serializer: JSONSerializer{},
		DefaultTTL: 5 * time.Minute,
		Memory:     DefaultMemoryConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Mode:         RedisStandalone,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// DefaultMemoryConfig 返回默认 Memory 配置
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		DefaultExpiration: 5 * time.Minute,
		CleanupInterval:   10 * time.Minute,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		if c.Memory == nil {
			c.Memory = DefaultMemoryConfig()
		}
	case DriverRedis:
		if c.Redis == nil {
			return ErrCacheInvalidConfig.WithMessage("redis config is required")
		}
		switch c.Redis.Mode {
		case RedisStandalone, "":
			if c.Redis.Addr == "" {
				return ErrCacheInvalidConfig.WithMessage("redis addr is required for standalone mode")
			}
		case RedisCluster:
			if len(c.Redis.Addrs) == 0 {
				return ErrCacheInvalidConfig.WithMessage("redis cluster requires addrs")
			}
		case RedisSentinel:
			if len(c.Redis.Addrs) == 0 || c.Redis.MasterName == "" {
				return ErrCacheInvalidConfig.WithMessage("redis sentinel requires addrs and master name")
			}
		default:
			return ErrCacheInvalidConfig.WithMessage("invalid redis mode " + string(c.Redis.Mode))
		}
	default:
		return ErrCacheInvalidConfig.WithMessage("invalid driver type " + string(c.Driver))
	}
	return nil
}
