package presence

import (
	"context"
	"time"
)

// User 目录中的用户
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Space 目录中的空间
type Space struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Capacity int    `json:"capacity"` // 0 表示使用默认容量
	OwnerID  string `json:"ownerId"`
	Private  bool   `json:"private"`
}

// Directory 用户与空间的权威数据源
//
// 查不到时返回 ErrUserNotFound / ErrSpaceNotFound；
// RecordSpaceMembership 可返回 ErrAccessDenied 或 ErrSpaceFull；
// 其他错误一律按 ErrUnavailable 处理。
type Directory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetSpace(ctx context.Context, spaceID string) (*Space, error)
	RecordSpaceMembership(ctx context.Context, userID, spaceID string) error
}

// ChatMessage 待持久化的聊天消息
type ChatMessage struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"spaceId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sentAt"`
}

// ChatSink 聊天持久化
type ChatSink interface {
	SaveChat(ctx context.Context, msg *ChatMessage) error
}

// NopChatSink 丢弃所有消息
type NopChatSink struct{}

func (NopChatSink) SaveChat(context.Context, *ChatMessage) error { return nil }
