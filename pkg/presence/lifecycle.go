package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/logger"
)

// Lifecycle 连接生命周期
//
// 传输层在连接建立、收到帧、连接结束时分别调用
// Connect / Receive / Disconnect。Disconnect 可重复调用。
type Lifecycle struct {
	index      *Index
	codec      *Codec
	dispatcher *Dispatcher
	bc         *Broadcaster
	log        logger.Logger
	now        func() time.Time
}

// Connect 登记新连接
func (l *Lifecycle) Connect(conn Conn) error {
	if err := l.index.RegisterConnection(conn); err != nil {
		return err
	}
	l.log.Debug("connection registered", zap.String("conn_id", conn.ID()), zap.String("subject", conn.Subject()))
	return nil
}

// Receive 解码并处理一帧，回复写入该连接的发送队列
func (l *Lifecycle) Receive(ctx context.Context, conn Conn, raw []byte) {
	var resp *Response
	ev, err := l.codec.Decode(raw)
	if err != nil {
		resp = Failure("", err)
		l.log.DebugContext(ctx, "frame rejected",
			zap.String("conn_id", conn.ID()),
			zap.String("code", resp.Code),
			zap.String("field", resp.Field),
		)
	} else {
		resp = l.dispatcher.Dispatch(ctx, conn, ev)
	}

	// 已关闭的连接不回复
	if resp.Code == ErrTransportClosed.Reason {
		return
	}

	frame, err := l.codec.EncodeResponse(resp)
	if err != nil {
		l.log.ErrorContext(ctx, "encode response failed", zap.String("conn_id", conn.ID()), zap.Error(err))
		return
	}
	if err := l.bc.SendTo(conn, frame); err != nil {
		l.log.DebugContext(ctx, "response dropped", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}

// Disconnect 清理连接，若已加入空间则向剩余成员广播 USER_LEFT
func (l *Lifecycle) Disconnect(conn Conn) {
	m, ok := l.index.UnregisterConnection(conn.ID())
	if !ok {
		return
	}
	l.dispatcher.broadcast(m.SpaceID, EventUserLeft, UserLeftPayload{
		UserID:    m.UserID,
		SpaceID:   m.SpaceID,
		Timestamp: l.now().UnixMilli(),
	}, conn.ID())

	l.log.Info("member disconnected",
		zap.String("conn_id", conn.ID()),
		zap.String("user_id", m.UserID),
		zap.String("space_id", m.SpaceID),
	)
}

// Evict 关闭投递失败的连接并清理其状态
func (l *Lifecycle) Evict(conn Conn) {
	go func() {
		conn.Close()
		l.Disconnect(conn)
	}()
}
