package ws

import "errors"

var (
	// ErrTooManyConnections 已达 MaxConnections
	ErrTooManyConnections = errors.New("ws: too many connections")
	// ErrClientIDExists 客户端 ID 冲突，自定义 WithClientID 时可能出现
	ErrClientIDExists = errors.New("ws: client id already exists")
	// ErrManagerClosed Shutdown 之后的握手
	ErrManagerClosed = errors.New("ws: manager is shutting down")

	// ErrConnectionClosed Send 到已关闭的连接
	ErrConnectionClosed = errors.New("ws: connection closed")
	// ErrChannelFull 发送队列已满，对端消费过慢
	ErrChannelFull = errors.New("ws: send channel full")

	// ErrInvalidConfig 配置校验失败
	ErrInvalidConfig = errors.New("ws: invalid config")
)
