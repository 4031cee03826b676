// Package ws is the WebSocket transport for the spaces server.
//
// # Features
//
//   - A connection limit enforced before the HTTP upgrade, so concurrent
//     handshakes cannot overshoot it
//   - One bounded FIFO send queue per connection; a full queue is reported
//     to the caller instead of blocking
//   - Ping/pong heartbeats with read deadlines
//   - Per-connection inbound rate limiting (token bucket); offenders are
//     closed with 1008 Policy Violation
//   - Origin whitelist for browser clients
//   - Graceful shutdown with 1001 Going Away
//
// # Basic Usage
//
// The transport knows nothing about frames; a Handler receives the raw
// bytes of every text or binary message in arrival order:
//
//	manager, err := ws.NewManager(ws.HandlerFuncs{
//	    Connect: func(c *ws.Client) error {
//	        return registry.Add(c)
//	    },
//	    Message: func(ctx context.Context, c *ws.Client, data []byte) {
//	        _ = c.Send(data) // echo
//	    },
//	    Disconnect: func(c *ws.Client) {
//	        registry.Remove(c.ID())
//	    },
//	}, log,
//	    ws.WithMaxConnections(10000),
//	    ws.WithCheckOriginWhitelist([]string{"https://example.com"}),
//	)
//	if err != nil {
//	    return err
//	}
//
//	r.GET("/ws", func(c *gin.Context) {
//	    _ = manager.HandleUpgrade(c.Writer, c.Request, ws.WithSubject(userID))
//	})
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	manager.Shutdown(ctx)
//
// # Delivery
//
// Client.Send never blocks: it enqueues the frame or returns ErrChannelFull
// (slow consumer) or ErrConnectionClosed. The write pump is the only writer
// on the socket, so frames enqueued to one client are written in order.
// The send channel is never closed; the write pump exits on context
// cancellation, so a Send racing with Close cannot panic.
//
// # Lifecycle
//
// Handler.OnDisconnect runs exactly once per accepted connection, after
// both pumps have exited, whether the peer went away, a heartbeat timed
// out, the rate limiter fired, or the server called Close.
package ws
