package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/tokmz/spaces/pkg/logger"
	"github.com/tokmz/spaces/pkg/presence"
	"github.com/tokmz/spaces/pkg/ws"
)

// bridge 将 WebSocket 连接事件转交给在线状态生命周期
type bridge struct {
	lc  *presence.Lifecycle
	log logger.Logger
}

var _ ws.Handler = (*bridge)(nil)

func (b *bridge) OnConnect(c *ws.Client) error {
	if err := b.lc.Connect(c); err != nil {
		b.log.Warn("register connection failed", zap.String("conn_id", c.ID()), zap.Error(err))
		return err
	}
	return nil
}

func (b *bridge) OnMessage(ctx context.Context, c *ws.Client, data []byte) {
	b.lc.Receive(ctx, c, data)
}

func (b *bridge) OnDisconnect(c *ws.Client) {
	b.lc.Disconnect(c)
}
