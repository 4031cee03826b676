package chatlog

import (
	"context"

	"gorm.io/gorm"

	"github.com/tokmz/spaces/pkg/logger"
	"github.com/tokmz/spaces/pkg/presence"
)

// Sink 可关闭的聊天持久化
type Sink interface {
	presence.ChatSink
	Close() error
}

// BatchSink 支持批量写入的后端，Async 优先使用
type BatchSink interface {
	SaveChats(ctx context.Context, msgs []*presence.ChatMessage) error
}

// NopSink 丢弃所有消息
type NopSink struct{ presence.NopChatSink }

func (NopSink) Close() error { return nil }

// New 根据配置创建聊天持久化，db 仅在 gorm 驱动下使用
func New(cfg *Config, db *gorm.DB, log logger.Logger) (Sink, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	var (
		sink Sink
		err  error
	)
	switch cfg.Driver {
	case "", DriverNone:
		return NopSink{}, nil
	case DriverGorm:
		if db == nil {
			return nil, ErrInvalidConfig.WithMessage("gorm driver requires a database")
		}
		sink = NewGormSink(db)
	case DriverKafka:
		sink, err = NewKafkaSink(cfg.Kafka)
	case DriverAMQP:
		sink, err = NewAMQPSink(cfg.AMQP)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Async.Enabled {
		return NewAsync(sink, cfg.Async, log), nil
	}
	return sink, nil
}
