package presence

import (
	"github.com/tokmz/spaces/pkg/errors"
)

// 协议错误：回复 failed，连接保持
var (
	ErrMalformedPayload = errors.New(4000, "MALFORMED_PAYLOAD", "malformed payload", 400)
	ErrUnknownEventType = errors.New(4001, "UNKNOWN_EVENT_TYPE", "unknown event type", 400)
	ErrInvalidPayload   = errors.New(4002, "INVALID_PAYLOAD", "invalid payload", 400)
)

// 业务拒绝：回复 failed，连接保持
var (
	ErrUserNotFound  = errors.New(4100, "USER_NOT_FOUND", "user not found", 404)
	ErrSpaceNotFound = errors.New(4101, "SPACE_NOT_FOUND", "space not found", 404)
	ErrSpaceFull     = errors.New(4102, "SPACE_FULL", "space is full", 409)
	ErrAccessDenied  = errors.New(4103, "ACCESS_DENIED", "access denied", 403)
	ErrAlreadyJoined = errors.New(4104, "ALREADY_JOINED", "connection already joined a space", 409)
	ErrNotJoined     = errors.New(4105, "NOT_JOINED", "connection has not joined a space", 409)
	ErrTargetOffline = errors.New(4106, "TARGET_OFFLINE", "target user is not connected", 404)
)

// 基础设施错误
var (
	// ErrUnavailable 依赖超时或失败，客户端可重试
	ErrUnavailable = errors.New(5003, "UNAVAILABLE", "service temporarily unavailable", 503)
	// ErrTransportClosed 连接已关闭，不回复
	ErrTransportClosed = errors.New(5100, "TRANSPORT_CLOSED", "transport closed", 410)
	// ErrInternal 处理器 panic 等未预期错误
	ErrInternal = errors.New(5000, "INTERNAL", "internal error", 500)

	ErrConnectionExists = errors.New(5101, "CONNECTION_EXISTS", "connection already registered", 500)
	ErrDispatcherFrozen = errors.New(5102, "DISPATCHER_FROZEN", "dispatcher middleware is frozen", 500)
)

// FieldError 载荷字段缺失或类型错误
type FieldError struct {
	Field  string // 点分路径，如 initialPosition.x
	Reason string
}

func (e *FieldError) Error() string {
	return "invalid payload: " + e.Reason
}

// Unwrap 使 errors.Is(err, ErrInvalidPayload) 成立
func (e *FieldError) Unwrap() error {
	return ErrInvalidPayload
}

func missingField(field string) error {
	return &FieldError{Field: field, Reason: "missing field " + field}
}

func invalidField(field, reason string) error {
	return &FieldError{Field: field, Reason: "field " + field + " " + reason}
}

// IsRetryable 是否为可重试的基础设施错误
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
