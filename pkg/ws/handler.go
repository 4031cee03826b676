package ws

import "context"

// Handler 连接生命周期回调
//
// OnConnect 在连接加入连接池后、开始读写前调用，返回错误则关闭连接；
// OnMessage 在读协程中按到达顺序调用；
// OnDisconnect 在读写协程均退出后调用，每个连接恰好一次。
type Handler interface {
	OnConnect(c *Client) error
	OnMessage(ctx context.Context, c *Client, data []byte)
	OnDisconnect(c *Client)
}

// HandlerFuncs 以函数组合 Handler，未设置的回调为空操作
type HandlerFuncs struct {
	Connect    func(c *Client) error
	Message    func(ctx context.Context, c *Client, data []byte)
	Disconnect func(c *Client)
}

func (h HandlerFuncs) OnConnect(c *Client) error {
	if h.Connect == nil {
		return nil
	}
	return h.Connect(c)
}

func (h HandlerFuncs) OnMessage(ctx context.Context, c *Client, data []byte) {
	if h.Message != nil {
		h.Message(ctx, c, data)
	}
}

func (h HandlerFuncs) OnDisconnect(c *Client) {
	if h.Disconnect != nil {
		h.Disconnect(c)
	}
}
