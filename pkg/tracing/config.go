package tracing

import (
	"fmt"
	"time"
)

// Config 链路追踪配置
type Config struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`

	// Exporter otlp / stdout / noop
	Exporter string `mapstructure:"exporter"`
	// Protocol OTLP 传输协议 http / grpc
	Protocol string            `mapstructure:"protocol"`
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
	Insecure bool              `mapstructure:"insecure"`

	// SamplingType always / never / ratio / parent_based
	SamplingType string  `mapstructure:"sampling_type"`
	SamplingRate float64 `mapstructure:"sampling_rate"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "spaces",
		ServiceVersion:     "dev",
		Environment:        "development",
		Exporter:           "stdout",
		Protocol:           "http",
		SamplingType:       "parent_based",
		SamplingRate:       1.0,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("tracing: service name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("tracing: sampling rate must be between 0.0 and 1.0")
	}
	switch c.Exporter {
	case "otlp", "stdout", "noop":
	default:
		return fmt.Errorf("tracing: invalid exporter %q", c.Exporter)
	}
	if c.Exporter == "otlp" && c.Protocol != "http" && c.Protocol != "grpc" {
		return fmt.Errorf("tracing: invalid otlp protocol %q", c.Protocol)
	}
	return nil
}
