package chatlog

import (
	"fmt"
	"time"
)

// Driver 聊天记录落地方式
type Driver string

const (
	DriverNone  Driver = "none"
	DriverGorm  Driver = "gorm"
	DriverKafka Driver = "kafka"
	DriverAMQP  Driver = "amqp"
)

// Config 聊天记录配置
type Config struct {
	Driver Driver       `mapstructure:"driver"`
	Async  AsyncConfig  `mapstructure:"async"`
	Kafka  *KafkaConfig `mapstructure:"kafka"`
	AMQP   *AMQPConfig  `mapstructure:"amqp"`
}

// AsyncConfig 异步写入配置
type AsyncConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	QueueSize     int           `mapstructure:"queue_size"`     // 队列长度，满时直接失败
	BatchSize     int           `mapstructure:"batch_size"`     // 单批最大条数
	FlushInterval time.Duration `mapstructure:"flush_interval"` // 最长攒批时间
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 投递配置
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
	Version  string   `mapstructure:"version"` // 为空时使用 sarama 默认版本
}

// AMQPConfig RabbitMQ 投递配置
type AMQPConfig struct {
	URL          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeType string `mapstructure:"exchange_type"`
	RoutingKey   string `mapstructure:"routing_key"` // 实际路由键为 routing_key.<spaceId>
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverNone,
		Async:  DefaultAsyncConfig(),
	}
}

// DefaultAsyncConfig 默认异步配置
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		Enabled:       true,
		QueueSize:     1024,
		BatchSize:     64,
		FlushInterval: 500 * time.Millisecond,
		WriteTimeout:  5 * time.Second,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Driver {
	case "", DriverNone, DriverGorm:
	case DriverKafka:
		if c.Kafka == nil || len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return ErrInvalidConfig.WithMessage("kafka driver requires brokers and topic")
		}
	case DriverAMQP:
		if c.AMQP == nil || c.AMQP.URL == "" || c.AMQP.Exchange == "" {
			return ErrInvalidConfig.WithMessage("amqp driver requires url and exchange")
		}
	default:
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported driver %q", c.Driver))
	}
	if c.Async.Enabled {
		if c.Async.QueueSize <= 0 || c.Async.BatchSize <= 0 {
			return ErrInvalidConfig.WithMessage("async queue_size and batch_size must be positive")
		}
		if c.Async.FlushInterval <= 0 {
			return ErrInvalidConfig.WithMessage("async flush_interval must be positive")
		}
	}
	return nil
}
