package chatlog

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tokmz/spaces/pkg/presence"
)

// ChatModel 聊天记录表
type ChatModel struct {
	ID        string    `gorm:"primaryKey;size:32"`
	SpaceID   string    `gorm:"size:64;not null;index:idx_chat_space_sent,priority:1"`
	UserID    string    `gorm:"size:64;not null;index"`
	Username  string    `gorm:"size:64"`
	AvatarURL string    `gorm:"size:512"`
	Message   string    `gorm:"type:text;not null"`
	SentAt    time.Time `gorm:"not null;index:idx_chat_space_sent,priority:2"`
}

func (ChatModel) TableName() string { return "chat_messages" }

func toModel(m *presence.ChatMessage) ChatModel {
	return ChatModel{
		ID:        m.ID,
		SpaceID:   m.SpaceID,
		UserID:    m.UserID,
		Username:  m.Username,
		AvatarURL: m.AvatarURL,
		Message:   m.Message,
		SentAt:    m.SentAt,
	}
}

func (m *ChatModel) toMessage() *presence.ChatMessage {
	return &presence.ChatMessage{
		ID:        m.ID,
		SpaceID:   m.SpaceID,
		UserID:    m.UserID,
		Username:  m.Username,
		AvatarURL: m.AvatarURL,
		Message:   m.Message,
		SentAt:    m.SentAt,
	}
}

// GormSink 写入数据库
type GormSink struct {
	db *gorm.DB
}

// NewGormSink 创建数据库写入
func NewGormSink(db *gorm.DB) *GormSink {
	return &GormSink{db: db}
}

// Migrate 自动迁移聊天记录表
func (s *GormSink) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ChatModel{})
}

// SaveChat 写入单条消息
func (s *GormSink) SaveChat(ctx context.Context, msg *presence.ChatMessage) error {
	m := toModel(msg)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return ErrWrite.WithError(err)
	}
	return nil
}

// SaveChats 批量写入
func (s *GormSink) SaveChats(ctx context.Context, msgs []*presence.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	models := make([]ChatModel, len(msgs))
	for i, msg := range msgs {
		models[i] = toModel(msg)
	}
	if err := s.db.WithContext(ctx).CreateInBatches(models, 100).Error; err != nil {
		return ErrWrite.WithError(err)
	}
	return nil
}

// History 查询空间最近的消息，按发送时间升序
func (s *GormSink) History(ctx context.Context, spaceID string, limit int) ([]*presence.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []ChatModel
	err := s.db.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("sent_at DESC").Order("id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*presence.ChatMessage, len(models))
	for i := range models {
		out[len(models)-1-i] = models[i].toMessage()
	}
	return out, nil
}

// Close 数据库由调用方管理
func (s *GormSink) Close() error { return nil }
