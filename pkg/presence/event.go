package presence

import "encoding/json"

// EventType 事件类型
type EventType string

// 入站事件
const (
	EventJoinSpace  EventType = "JOIN_SPACE"
	EventLeaveSpace EventType = "LEAVE_SPACE"
	EventMove       EventType = "MOVE"
	EventAction     EventType = "ACTION"
	EventChat       EventType = "CHAT"
	EventAudio      EventType = "AUDIO"
	EventVideo      EventType = "VIDEO"
)

// Inbound 是否为可接收的入站事件类型
func (t EventType) Inbound() bool {
	switch t {
	case EventJoinSpace, EventLeaveSpace, EventMove, EventAction, EventChat, EventAudio, EventVideo:
		return true
	}
	return false
}

// 出站广播
const (
	EventUserJoined  EventType = "USER_JOINED"
	EventUserLeft    EventType = "USER_LEFT"
	EventUserMoved   EventType = "USER_MOVED"
	EventUserAction  EventType = "USER_ACTION"
	EventChatMessage EventType = "CHAT_MESSAGE"
)

// Position 二维坐标与朝向
type Position struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction string  `json:"direction"`
}

// Event 已解码的入站事件
// 具体类型为 *JoinSpace / *LeaveSpace / *Move / *Action / *Chat / *Signal
type Event interface {
	Type() EventType
	event()
}

// JoinSpace 加入空间
type JoinSpace struct {
	SpaceID         string   `json:"spaceId"`
	UserID          string   `json:"userId"`
	InitialPosition Position `json:"initialPosition"`
}

// LeaveSpace 离开当前空间
type LeaveSpace struct{}

// Move 移动
type Move struct {
	Position
}

// Action 自定义动作，可附带新位置
type Action struct {
	Action   string          `json:"action"`
	Position *Position       `json:"position,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Chat 空间聊天
type Chat struct {
	Message string `json:"message"`
}

// Signal 音视频信令，Signal 原样转发给目标用户
type Signal struct {
	Kind         EventType       `json:"-"` // EventAudio / EventVideo
	TargetUserID string          `json:"targetUserId"`
	Signal       json.RawMessage `json:"signal"`
}

func (*JoinSpace) Type() EventType  { return EventJoinSpace }
func (*LeaveSpace) Type() EventType { return EventLeaveSpace }
func (*Move) Type() EventType       { return EventMove }
func (*Action) Type() EventType     { return EventAction }
func (*Chat) Type() EventType       { return EventChat }
func (s *Signal) Type() EventType   { return s.Kind }

func (*JoinSpace) event()  {}
func (*LeaveSpace) event() {}
func (*Move) event()       {}
func (*Action) event()     {}
func (*Chat) event()       {}
func (*Signal) event()     {}

// UserInfo 广播中的用户信息
type UserInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// UserJoinedPayload USER_JOINED 载荷
type UserJoinedPayload struct {
	User      UserInfo `json:"user"`
	SpaceID   string   `json:"spaceId"`
	Position  Position `json:"position"`
	Timestamp int64    `json:"timestamp"`
}

// UserLeftPayload USER_LEFT 载荷
type UserLeftPayload struct {
	UserID    string `json:"userId"`
	SpaceID   string `json:"spaceId"`
	Timestamp int64  `json:"timestamp"`
}

// UserMovedPayload USER_MOVED 载荷
type UserMovedPayload struct {
	UserID    string   `json:"userId"`
	SpaceID   string   `json:"spaceId"`
	Position  Position `json:"position"`
	Timestamp int64    `json:"timestamp"`
}

// UserActionPayload USER_ACTION 载荷
type UserActionPayload struct {
	UserID    string          `json:"userId"`
	SpaceID   string          `json:"spaceId"`
	Action    string          `json:"action"`
	Position  *Position       `json:"position,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ChatMessagePayload CHAT_MESSAGE 载荷
type ChatMessagePayload struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	SpaceID   string `json:"spaceId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// SpaceInfo 加入成功时返回的空间信息
type SpaceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Capacity int    `json:"capacity"`
}

// Occupant 空间内的一位成员
type Occupant struct {
	User     UserInfo `json:"user"`
	Position Position `json:"position"`
}

// JoinResult JOIN_SPACE 成功响应的 data
type JoinResult struct {
	User     UserInfo   `json:"user"`
	SpaceID  string     `json:"spaceId"`
	Position Position   `json:"position"`
	Space    SpaceInfo  `json:"space"`
	Users    []Occupant `json:"users"`
}

// Response 直接回复给发起连接的帧
type Response struct {
	Status      string    `json:"status"`
	RequestType EventType `json:"requestType,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	Code        string    `json:"code,omitempty"`
	Field       string    `json:"field,omitempty"`
	Retryable   bool      `json:"retryable,omitempty"`
	Data        any       `json:"data,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)
