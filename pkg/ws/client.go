package ws

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 自定义关闭码
const (
	// CloseRateLimited 入站消息超过限流
	CloseRateLimited = websocket.ClosePolicyViolation
	// CloseSlowConsumer 发送队列已满
	CloseSlowConsumer = websocket.CloseTryAgainLater
)

// Client WebSocket 客户端
type Client struct {
	id      string
	conn    *websocket.Conn
	manager *Manager

	// 发送队列，只在 writePump 中消费，永不关闭
	send chan []byte

	// 元数据
	subject    string
	remoteAddr string

	// 生命周期
	ctx         context.Context
	cancel      context.CancelFunc
	closed      atomic.Bool
	closeOnce   sync.Once
	closeCode   int
	closeReason string

	// 限流
	limiter *rate.Limiter
}

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithClientID 设置客户端 ID
func WithClientID(id string) ClientOption {
	return func(c *Client) {
		c.id = id
	}
}

// WithSubject 设置认证主体（通常是用户 ID）
func WithSubject(subject string) ClientOption {
	return func(c *Client) {
		c.subject = subject
	}
}

// newClient 创建客户端
func newClient(conn *websocket.Conn, manager *Manager, opts ...ClientOption) *Client {
	ctx, cancel := context.WithCancel(manager.ctx)

	client := &Client{
		id:         uuid.New().String(),
		conn:       conn,
		manager:    manager,
		send:       make(chan []byte, manager.config.MessageQueueSize),
		remoteAddr: conn.RemoteAddr().String(),
		ctx:        ctx,
		cancel:     cancel,
		closeCode:  websocket.CloseNormalClosure,
	}
	if rl := manager.config.RateLimit; rl.Enabled {
		client.limiter = rate.NewLimiter(rate.Limit(rl.MessagesPerSecond), rl.Burst)
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// ID 客户端唯一标识
func (c *Client) ID() string {
	return c.id
}

// Subject 握手时认证的主体，匿名为空
func (c *Client) Subject() string {
	return c.subject
}

// Context 客户端生命周期 context，连接关闭时取消
func (c *Client) Context() context.Context {
	return c.ctx
}

// run 运行读写协程，两者都退出后返回
func (c *Client) run() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		c.readPump()
	}()

	go func() {
		defer wg.Done()
		c.writePump()
	}()

	wg.Wait()
}

// readPump 读取消息
func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			c.manager.log.Error("ws read pump panic",
				zap.String("client_id", c.id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			c.CloseWithReason(websocket.CloseInternalServerErr, "internal error")
			return
		}
		c.Close()
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.manager.config.HeartbeatTimeout)); err != nil {
		c.manager.metrics.IncrementReadErrors()
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.manager.config.HeartbeatTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!c.closed.Load() {
				c.manager.metrics.IncrementReadErrors()
				c.manager.log.Debug("ws read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.manager.metrics.IncrementRateLimited()
			c.manager.log.Warn("client rate limited", zap.String("client_id", c.id), zap.String("subject", c.subject))
			c.CloseWithReason(CloseRateLimited, "rate limit exceeded")
			return
		}

		c.manager.metrics.IncrementMessagesReceived()
		c.manager.handler.OnMessage(c.ctx, c, data)
	}
}

// writePump 写入消息
func (c *Client) writePump() {
	ticker := time.NewTicker(c.manager.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			// 尽量写出队列中已有的消息，再发送关闭帧
			c.drain()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.manager.config.WriteWait))
			return

		case message := <-c.send:
			if err := c.writeMessage(message); err != nil {
				c.manager.metrics.IncrementWriteErrors()
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.manager.config.WriteWait)); err != nil {
				c.manager.metrics.IncrementWriteErrors()
				c.Close()
				return
			}
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			if err := c.writeMessage(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// writeMessage 写入消息
func (c *Client) writeMessage(message []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Send 非阻塞入队一帧
// 连接关闭返回 ErrConnectionClosed，队列满返回 ErrChannelFull
func (c *Client) Send(msg []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.manager.metrics.IncrementDroppedMessages()
		return ErrChannelFull
	}
}

// Close 以正常关闭码关闭连接，可重复调用
func (c *Client) Close() {
	c.CloseWithReason(websocket.CloseNormalClosure, "")
}

// CloseWithReason 以指定关闭码关闭连接，仅首次调用生效
func (c *Client) CloseWithReason(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.closed.Store(true)
		// writePump 观察到 ctx 取消后写关闭帧并断开底层连接
		c.cancel()
	})
}

// IsClosed 检查是否已关闭
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// RemoteAddr 获取远程地址
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

