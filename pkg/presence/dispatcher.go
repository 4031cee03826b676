package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/spaces/pkg/errors"
	"github.com/tokmz/spaces/pkg/logger"
)

// Request 一次事件处理请求
type Request struct {
	Conn       Conn
	Event      Event
	ReceivedAt time.Time
}

// Result 处理成功的结果，转换为 success 回复
type Result struct {
	Message string
	Data    any
}

// HandlerFunc 事件处理函数
type HandlerFunc func(ctx context.Context, req *Request) (*Result, error)

// NextFunc 调用链中的下一环
type NextFunc func(ctx context.Context) (*Result, error)

// MiddlewareFunc 事件中间件
type MiddlewareFunc func(ctx context.Context, req *Request, next NextFunc) (*Result, error)

// CloseCodeSessionReplaced 同一用户在新连接加入时旧连接的关闭码
const CloseCodeSessionReplaced = 4001

// reasonCloser 支持带关闭码关闭的连接
type reasonCloser interface {
	CloseWithReason(code int, reason string)
}

// Dispatcher 按事件类型执行状态转换
type Dispatcher struct {
	index   *Index
	dir     Directory
	chat    ChatSink
	bc      *Broadcaster
	codec   *Codec
	log     logger.Logger
	metrics Metrics
	config  *Config
	now     func() time.Time
	newID   func() string

	mu          sync.Mutex
	middlewares []MiddlewareFunc
	frozen      bool
	chain       HandlerFunc
	freezeOnce  sync.Once
}

// Use 注册中间件，按注册顺序由外到内执行
// 首次 Dispatch 之后再注册返回 ErrDispatcherFrozen
func (d *Dispatcher) Use(mw ...MiddlewareFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return ErrDispatcherFrozen
	}
	d.middlewares = append(d.middlewares, mw...)
	return nil
}

// Freeze 预编译中间件链
func (d *Dispatcher) Freeze() {
	d.freezeOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.frozen = true
		d.chain = d.buildChain()
	})
}

func (d *Dispatcher) buildChain() HandlerFunc {
	h := HandlerFunc(d.route)
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		mw, next := d.middlewares[i], h
		h = func(ctx context.Context, req *Request) (*Result, error) {
			return mw(ctx, req, func(ctx context.Context) (*Result, error) {
				return next(ctx, req)
			})
		}
	}
	return h
}

// Dispatch 处理一个已解码事件，每个事件恰好产生一个回复
func (d *Dispatcher) Dispatch(ctx context.Context, conn Conn, ev Event) *Response {
	d.Freeze()
	res, err := d.chain(ctx, &Request{Conn: conn, Event: ev, ReceivedAt: d.now()})
	if err != nil {
		return Failure(ev.Type(), err)
	}
	if res == nil {
		res = &Result{}
	}
	return Success(ev.Type(), res.Message, res.Data)
}

func (d *Dispatcher) route(ctx context.Context, req *Request) (*Result, error) {
	if _, ok := req.Event.(*JoinSpace); !ok && !d.index.IsJoined(req.Conn.ID()) {
		return nil, ErrNotJoined
	}

	switch ev := req.Event.(type) {
	case *JoinSpace:
		return d.handleJoin(ctx, req.Conn, ev)
	case *LeaveSpace:
		return d.handleLeave(ctx, req.Conn)
	case *Move:
		return d.handleMove(ctx, req.Conn, ev)
	case *Action:
		return d.handleAction(ctx, req.Conn, ev)
	case *Chat:
		return d.handleChat(ctx, req.Conn, ev)
	case *Signal:
		return d.handleSignal(ctx, req.Conn, ev)
	}
	return nil, ErrUnknownEventType
}

func (d *Dispatcher) handleJoin(ctx context.Context, conn Conn, ev *JoinSpace) (*Result, error) {
	if d.index.IsJoined(conn.ID()) {
		return nil, ErrAlreadyJoined
	}
	if sub := conn.Subject(); sub != "" && sub != ev.UserID {
		return nil, ErrAccessDenied.WithMessage("userId does not match authenticated subject")
	}

	lctx, cancel := context.WithTimeout(ctx, d.config.DirectoryTimeout)
	defer cancel()

	// 并行查询，错误按 用户 -> 空间 的顺序报告
	var (
		user            *User
		space           *Space
		userErr, spcErr error
		g               errgroup.Group
	)
	g.Go(func() error {
		user, userErr = d.dir.GetUser(lctx, ev.UserID)
		return nil
	})
	g.Go(func() error {
		space, spcErr = d.dir.GetSpace(lctx, ev.SpaceID)
		return nil
	})
	_ = g.Wait()

	if err := directoryErr(userErr); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if err := directoryErr(spcErr); err != nil {
		return nil, err
	}
	if space == nil {
		return nil, ErrSpaceNotFound
	}

	capacity := space.Capacity
	if capacity <= 0 {
		capacity = d.config.DefaultCapacity
	}
	if !d.index.HasCapacity(space.ID, user.ID, capacity) {
		return nil, ErrSpaceFull
	}

	// 记录同时做访问控制，需在提交前；提交失败时已写入的进入记录不回滚
	if !d.index.IsOpen(conn.ID()) {
		return nil, ErrTransportClosed
	}
	if err := directoryErr(d.dir.RecordSpaceMembership(lctx, user.ID, space.ID)); err != nil {
		return nil, err
	}

	evicted, err := d.index.AttachMember(conn.ID(), Member{
		UserID:    user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		SpaceID:   space.ID,
		Position:  ev.InitialPosition,
		JoinedAt:  d.now(),
	}, capacity)
	if err != nil {
		return nil, err
	}
	if evicted != nil {
		d.replaceSession(ctx, evicted, conn.ID())
	}

	member, ok := d.index.MemberOf(conn.ID())
	if !ok {
		// 连接在加入后立即断开
		return nil, ErrTransportClosed
	}

	occupants := d.index.Occupants(space.ID)
	users := make([]Occupant, 0, len(occupants))
	for i := range occupants {
		if occupants[i].ConnID == conn.ID() {
			continue
		}
		users = append(users, Occupant{User: occupants[i].Info(), Position: occupants[i].Position})
	}

	d.broadcast(space.ID, EventUserJoined, UserJoinedPayload{
		User:      member.Info(),
		SpaceID:   space.ID,
		Position:  member.Position,
		Timestamp: d.now().UnixMilli(),
	}, conn.ID())

	d.log.InfoContext(ctx, "member joined",
		zap.String("conn_id", conn.ID()),
		zap.String("user_id", user.ID),
		zap.String("space_id", space.ID),
		zap.Int("occupants", len(users)+1),
	)

	return &Result{
		Message: "joined space",
		Data: JoinResult{
			User:     member.Info(),
			SpaceID:  space.ID,
			Position: member.Position,
			Space: SpaceInfo{
				ID:       space.ID,
				Name:     space.Name,
				Width:    space.Width,
				Height:   space.Height,
				Capacity: capacity,
			},
			Users: users,
		},
	}, nil
}

// replaceSession 同步退役同一用户的旧连接并关闭它
func (d *Dispatcher) replaceSession(ctx context.Context, old Conn, newConnID string) {
	if m, ok := d.index.RetireConnection(old.ID()); ok {
		d.broadcast(m.SpaceID, EventUserLeft, UserLeftPayload{
			UserID:    m.UserID,
			SpaceID:   m.SpaceID,
			Timestamp: d.now().UnixMilli(),
		}, newConnID)
		d.log.InfoContext(ctx, "session replaced",
			zap.String("user_id", m.UserID),
			zap.String("old_conn_id", old.ID()),
			zap.String("new_conn_id", newConnID),
		)
	}

	if rc, ok := old.(reasonCloser); ok {
		go rc.CloseWithReason(CloseCodeSessionReplaced, "session replaced")
		return
	}
	go old.Close()
}

func (d *Dispatcher) handleLeave(ctx context.Context, conn Conn) (*Result, error) {
	m, ok := d.index.DetachMember(conn.ID())
	if !ok {
		return nil, ErrNotJoined
	}
	d.broadcast(m.SpaceID, EventUserLeft, UserLeftPayload{
		UserID:    m.UserID,
		SpaceID:   m.SpaceID,
		Timestamp: d.now().UnixMilli(),
	}, conn.ID())

	d.log.InfoContext(ctx, "member left",
		zap.String("conn_id", conn.ID()),
		zap.String("user_id", m.UserID),
		zap.String("space_id", m.SpaceID),
	)
	return &Result{Message: "left space", Data: map[string]string{"spaceId": m.SpaceID}}, nil
}

func (d *Dispatcher) handleMove(_ context.Context, conn Conn, ev *Move) (*Result, error) {
	m, err := d.index.UpdatePosition(conn.ID(), ev.Position)
	if err != nil {
		return nil, err
	}
	d.broadcast(m.SpaceID, EventUserMoved, UserMovedPayload{
		UserID:    m.UserID,
		SpaceID:   m.SpaceID,
		Position:  m.Position,
		Timestamp: d.now().UnixMilli(),
	}, "")
	return &Result{Message: "moved", Data: m.Position}, nil
}

func (d *Dispatcher) handleAction(_ context.Context, conn Conn, ev *Action) (*Result, error) {
	var (
		m   Member
		err error
	)
	if ev.Position != nil {
		m, err = d.index.UpdatePosition(conn.ID(), *ev.Position)
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		if m, ok = d.index.MemberOf(conn.ID()); !ok {
			return nil, ErrNotJoined
		}
	}

	d.broadcast(m.SpaceID, EventUserAction, UserActionPayload{
		UserID:    m.UserID,
		SpaceID:   m.SpaceID,
		Action:    ev.Action,
		Position:  ev.Position,
		Data:      ev.Data,
		Timestamp: d.now().UnixMilli(),
	}, "")
	return &Result{Message: "action sent"}, nil
}

func (d *Dispatcher) handleChat(ctx context.Context, conn Conn, ev *Chat) (*Result, error) {
	m, ok := d.index.MemberOf(conn.ID())
	if !ok {
		return nil, ErrNotJoined
	}

	msg := &ChatMessage{
		ID:        d.newID(),
		SpaceID:   m.SpaceID,
		UserID:    m.UserID,
		Username:  m.Username,
		AvatarURL: m.AvatarURL,
		Message:   ev.Message,
		SentAt:    d.now(),
	}

	// 持久化不随连接取消
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.ChatTimeout)
	err := d.chat.SaveChat(pctx, msg)
	cancel()
	if err != nil {
		d.metrics.IncChatPersistFailed()
		logger.FromContext(ctx, d.log).WarnContext(ctx, "chat persist failed",
			zap.Bool("persist_failed", true),
			zap.String("message_id", msg.ID),
			zap.String("space_id", msg.SpaceID),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
	}

	d.broadcast(m.SpaceID, EventChatMessage, ChatMessagePayload{
		ID:        msg.ID,
		UserID:    msg.UserID,
		Username:  msg.Username,
		AvatarURL: msg.AvatarURL,
		SpaceID:   msg.SpaceID,
		Message:   msg.Message,
		Timestamp: msg.SentAt.UnixMilli(),
	}, "")

	return &Result{
		Message: "message sent",
		Data: map[string]any{
			"id":        msg.ID,
			"timestamp": msg.SentAt.UnixMilli(),
		},
	}, nil
}

func (d *Dispatcher) handleSignal(ctx context.Context, conn Conn, ev *Signal) (*Result, error) {
	m, ok := d.index.MemberOf(conn.ID())
	if !ok {
		return nil, ErrNotJoined
	}

	frame, err := d.codec.EncodeSignal(ev.Kind, m.UserID, m.SpaceID, ev.Signal)
	if err != nil {
		return nil, ErrInternal.WithError(err)
	}
	if err := d.bc.SendToUser(ev.TargetUserID, frame); err != nil {
		return nil, err
	}

	logger.FromContext(ctx, d.log).DebugContext(ctx, "signal relayed",
		zap.String("kind", string(ev.Kind)),
		zap.String("from", m.UserID),
		zap.String("to", ev.TargetUserID),
	)
	return &Result{Message: "signal relayed"}, nil
}

// broadcast 编码一次后扇出
func (d *Dispatcher) broadcast(spaceID string, t EventType, payload any, excludeConnID string) DeliveryReport {
	frame, err := d.codec.EncodeBroadcast(t, payload)
	if err != nil {
		d.log.Error("encode broadcast failed", zap.String("event", string(t)), zap.Error(err))
		return DeliveryReport{}
	}
	return d.bc.BroadcastToSpace(spaceID, t, frame, excludeConnID)
}

// directoryErr 将目录错误归类，未识别的错误视为不可用
func directoryErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUnavailable.WithError(err)
	}
	for _, known := range []error{ErrUserNotFound, ErrSpaceNotFound, ErrSpaceFull, ErrAccessDenied, ErrUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	return ErrUnavailable.WithError(err)
}
