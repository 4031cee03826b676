package ws

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/logger"
)

// Manager 管理 WebSocket 握手与连接生命周期
type Manager struct {
	clients *registry
	handler Handler

	config   *Config
	upgrader *websocket.Upgrader
	log      logger.Logger
	metrics  Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewManager 创建管理器，handler 接收连接事件与入站帧
func NewManager(handler Handler, log logger.Logger, opts ...Option) (*Manager, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		clients:  newRegistry(config.MaxConnections),
		handler:  handler,
		config:   config,
		upgrader: newUpgrader(config),
		log:      log.Named("ws"),
		metrics:  config.Metrics,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// HandleUpgrade 完成握手并启动读写协程，不等待连接结束
func (m *Manager) HandleUpgrade(w http.ResponseWriter, r *http.Request, opts ...ClientOption) error {
	if m.closed.Load() {
		m.reject("shutting_down")
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return ErrManagerClosed
	}
	if !m.clients.reserve() {
		m.reject("too_many_connections")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return ErrTooManyConnections
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写入 HTTP 错误响应
		m.clients.release()
		m.reject("handshake")
		return err
	}

	client := newClient(conn, m, opts...)
	if err := m.clients.commit(client); err != nil {
		m.reject("duplicate_id")
		m.abort(client, websocket.ClosePolicyViolation, "duplicate client id")
		return err
	}
	if err := m.handler.OnConnect(client); err != nil {
		m.clients.remove(client)
		m.abort(client, websocket.CloseInternalServerErr, "connect rejected")
		return err
	}

	m.metrics.IncrementConnections()
	m.metrics.SetConnectionCount(m.clients.len())
	m.log.Debug("client connected", zap.String("client_id", client.ID()), zap.String("subject", client.Subject()), zap.String("remote_addr", client.RemoteAddr()))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		client.run()
		m.release(client)
	}()
	return nil
}

// abort 关闭尚未启动读写协程的连接
func (m *Manager) abort(c *Client, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.conn.Close()
	c.cancel()
}

// release 连接结束后的清理，每个连接只执行一次
func (m *Manager) release(c *Client) {
	m.clients.remove(c)
	m.handler.OnDisconnect(c)
	m.metrics.DecrementConnections()
	m.metrics.SetConnectionCount(m.clients.len())
	m.log.Debug("client disconnected", zap.String("client_id", c.ID()), zap.String("reason", c.closeReason))
}

func (m *Manager) reject(reason string) {
	m.metrics.IncrementRejectedConnections(reason)
	m.log.Debug("upgrade rejected", zap.String("reason", reason))
}

// Shutdown 拒绝新握手，以 1001 关闭所有连接并等待 OnDisconnect 执行完毕
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, c := range m.clients.snapshot() {
		c.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	defer m.cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetClient 按 ID 查找在线连接
func (m *Manager) GetClient(clientID string) (*Client, bool) {
	return m.clients.get(clientID)
}

// GetClientCount 在线连接数
func (m *Manager) GetClientCount() int {
	return m.clients.len()
}
