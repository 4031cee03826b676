package chatlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/tokmz/spaces/pkg/presence"
)

// KafkaSink 投递到 Kafka，以 spaceId 为 key 保证同一空间内有序
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSink 创建 Kafka 投递
func NewKafkaSink(cfg *KafkaConfig) (*KafkaSink, error) {
	sc, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("chatlog: kafka producer: %w", err)
	}
	return newKafkaSink(p, cfg.Topic), nil
}

func newKafkaSink(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func newSaramaConfig(cfg *KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, ErrInvalidConfig.WithError(err)
		}
		sc.Version = v
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	return sc, nil
}

func (s *KafkaSink) message(msg *presence.ChatMessage) (*sarama.ProducerMessage, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(msg.SpaceID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(presence.EventChatMessage)},
			{Key: []byte("id"), Value: []byte(msg.ID)},
		},
		Timestamp: msg.SentAt,
	}, nil
}

// SaveChat 同步投递单条消息
func (s *KafkaSink) SaveChat(ctx context.Context, msg *presence.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pm, err := s.message(msg)
	if err != nil {
		return ErrWrite.WithError(err)
	}
	if _, _, err := s.producer.SendMessage(pm); err != nil {
		return ErrWrite.WithError(err)
	}
	return nil
}

// SaveChats 批量投递
func (s *KafkaSink) SaveChats(ctx context.Context, msgs []*presence.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := make([]*sarama.ProducerMessage, 0, len(msgs))
	for _, msg := range msgs {
		pm, err := s.message(msg)
		if err != nil {
			return ErrWrite.WithError(err)
		}
		batch = append(batch, pm)
	}
	if err := s.producer.SendMessages(batch); err != nil {
		return ErrWrite.WithError(err)
	}
	return nil
}

// Close 关闭生产者
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
