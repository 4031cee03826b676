package chatlog

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tokmz/spaces/pkg/presence"
)

// publisher *amqp.Channel 的发布子集
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink 投递到 RabbitMQ 交换机
type AMQPSink struct {
	conn       *amqp.Connection
	ch         publisher
	exchange   string
	routingKey string
}

// NewAMQPSink 连接 RabbitMQ 并声明交换机
func NewAMQPSink(cfg *AMQPConfig) (*AMQPSink, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("chatlog: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("chatlog: amqp channel: %w", err)
	}
	kind := cfg.ExchangeType
	if kind == "" {
		kind = amqp.ExchangeTopic
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, kind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("chatlog: amqp declare exchange: %w", err)
	}
	s := newAMQPSink(ch, cfg.Exchange, cfg.RoutingKey)
	s.conn = conn
	return s, nil
}

func newAMQPSink(ch publisher, exchange, routingKey string) *AMQPSink {
	if routingKey == "" {
		routingKey = "chat"
	}
	return &AMQPSink{ch: ch, exchange: exchange, routingKey: routingKey}
}

// SaveChat 发布消息，路由键为 routing_key.<spaceId>
func (s *AMQPSink) SaveChat(ctx context.Context, msg *presence.ChatMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return ErrWrite.WithError(err)
	}
	err = s.ch.PublishWithContext(ctx, s.exchange, s.routingKey+"."+msg.SpaceID, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.SentAt,
		Type:         string(presence.EventChatMessage),
		Body:         body,
	})
	if err != nil {
		return ErrWrite.WithError(err)
	}
	return nil
}

// Close 关闭通道与连接
func (s *AMQPSink) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
