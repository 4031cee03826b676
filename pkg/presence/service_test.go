package presence

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/spaces/pkg/logger"
)

func TestJoinEmptySpace(t *testing.T) {
	h := newHarness(t)
	c1 := h.connect("c1")

	res := h.mustJoin(c1, "u1", "s1", 100, 100)

	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "s1", res.SpaceID)
	assert.Equal(t, Position{X: 100, Y: 100, Direction: "down"}, res.Position)
	assert.Equal(t, SpaceInfo{ID: "s1", Name: "Lobby", Width: 800, Height: 600, Capacity: 10}, res.Space)
	assert.Empty(t, res.Users)

	// 只有回复，没有广播
	assert.Equal(t, 1, c1.frameCount())
	assert.Equal(t, []string{"u1/s1"}, h.dir.recorded)
	assert.Equal(t, 1, h.svc.SpaceUserCount("s1"))
}

func TestJoinOccupiedSpace(t *testing.T) {
	h := newHarness(t)
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c1, "u1", "s1", 100, 100)
	c1.reset()

	res := h.mustJoin(c2, "u2", "s1", 200, 150)

	require.Len(t, res.Users, 1)
	assert.Equal(t, "u1", res.Users[0].User.ID)
	assert.Equal(t, Position{X: 100, Y: 100, Direction: "down"}, res.Users[0].Position)

	joined := c1.broadcasts(t, EventUserJoined)
	require.Len(t, joined, 1)
	p := decodePayload[UserJoinedPayload](t, joined[0])
	assert.Equal(t, "u2", p.User.ID)
	assert.Equal(t, "bob", p.User.Username)
	assert.Equal(t, Position{X: 200, Y: 150, Direction: "down"}, p.Position)
	assert.Equal(t, fixedNow.UnixMilli(), p.Timestamp)

	assert.Empty(t, c2.broadcasts(t, EventUserJoined), "joiner must not see its own USER_JOINED")
}

func TestMoveBroadcast(t *testing.T) {
	h := newHarness(t)
	c1, c2, c3 := h.connect("c1"), h.connect("c2"), h.connect("c3")
	h.mustJoin(c1, "u1", "s1", 100, 100)
	h.mustJoin(c2, "u2", "s1", 200, 150)
	h.mustJoin(c3, "u3", "s1", 50, 50)
	for _, c := range []*fakeConn{c1, c2, c3} {
		c.reset()
	}

	r := h.send(c1, EventMove, map[string]any{"x": 110, "y": 100, "direction": "right"})
	require.Equal(t, StatusSuccess, r.Status)
	assert.Equal(t, string(EventMove), r.RequestType)

	want := Position{X: 110, Y: 100, Direction: "right"}
	for _, c := range []*fakeConn{c1, c2, c3} {
		moved := c.broadcasts(t, EventUserMoved)
		require.Len(t, moved, 1, c.id)
		p := decodePayload[UserMovedPayload](t, moved[0])
		assert.Equal(t, "u1", p.UserID)
		assert.Equal(t, want, p.Position)
	}

	m, ok := h.svc.Index.MemberOf("c1")
	require.True(t, ok)
	assert.Equal(t, want, m.Position)
}

func TestDisconnectBroadcastsLeft(t *testing.T) {
	h := newHarness(t)
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c1, "u1", "s1", 0, 0)
	h.mustJoin(c2, "u2", "s1", 0, 0)
	c2.reset()

	h.svc.Lifecycle.Disconnect(c1)

	left := c2.broadcasts(t, EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "u1", decodePayload[UserLeftPayload](t, left[0]).UserID)
	assert.Equal(t, 1, h.svc.SpaceUserCount("s1"))
	_, online := h.svc.Index.ConnectionOf("u1")
	assert.False(t, online)

	// 重复断开不产生任何效果
	h.svc.Lifecycle.Disconnect(c1)
	assert.Len(t, c2.broadcasts(t, EventUserLeft), 1)
}

func TestJoinFullSpace(t *testing.T) {
	h := newHarness(t)
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c1, "u1", "tiny", 0, 0)
	c1.reset()

	r := h.join(c2, "u2", "tiny", 0, 0)

	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "SPACE_FULL", r.Code)
	assert.False(t, r.Retryable)
	assert.False(t, h.svc.Index.IsJoined("c2"))
	assert.Equal(t, 0, c1.frameCount())
	assert.Equal(t, 1, h.svc.SpaceUserCount("tiny"))
}

func TestDisconnectWithoutJoin(t *testing.T) {
	h := newHarness(t)
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c2, "u2", "s1", 0, 0)
	c2.reset()

	h.svc.Lifecycle.Disconnect(c1)

	assert.Equal(t, 0, c2.frameCount())
	assert.Equal(t, Stats{Connections: 1, Members: 1, Spaces: 1}, h.svc.Stats())
}

func TestRejectsBeforeJoin(t *testing.T) {
	h := newHarness(t)
	c1 := h.connect("c1")

	tests := []struct {
		typ     EventType
		payload any
	}{
		{EventLeaveSpace, map[string]any{}},
		{EventMove, map[string]any{"x": 1, "y": 2, "direction": "up"}},
		{EventAction, map[string]any{"action": "wave"}},
		{EventChat, map[string]any{"message": "hi"}},
		{EventAudio, map[string]any{"targetUserId": "u2", "signal": map[string]any{"sdp": "x"}}},
		{EventVideo, map[string]any{"targetUserId": "u2", "signal": "candidate"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			r := h.send(c1, tt.typ, tt.payload)
			assert.Equal(t, StatusFailed, r.Status)
			assert.Equal(t, "NOT_JOINED", r.Code)
			assert.Equal(t, string(tt.typ), r.RequestType)
		})
	}
}

func TestJoinTwice(t *testing.T) {
	h := newHarness(t)
	c1 := h.connect("c1")
	h.mustJoin(c1, "u1", "s1", 0, 0)

	r := h.join(c1, "u1", "s2", 0, 0)
	assert.Equal(t, "ALREADY_JOINED", r.Code)

	m, _ := h.svc.Index.MemberOf("c1")
	assert.Equal(t, "s1", m.SpaceID)
}

func TestJoinFailures(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		space     string
		subject   string
		setup     func(d *fakeDirectory)
		code      string
		retryable bool
	}{
		{name: "unknown user", user: "ghost", space: "s1", code: "USER_NOT_FOUND"},
		{name: "unknown space", user: "u1", space: "nowhere", code: "SPACE_NOT_FOUND"},
		{name: "user checked before space", user: "ghost", space: "nowhere", code: "USER_NOT_FOUND"},
		{
			name: "directory error", user: "u1", space: "s1", code: "UNAVAILABLE", retryable: true,
			setup: func(d *fakeDirectory) { d.err = stderrors.New("connection refused") },
		},
		{
			name: "directory timeout", user: "u1", space: "s1", code: "UNAVAILABLE", retryable: true,
			setup: func(d *fakeDirectory) { d.delay = 500 * time.Millisecond },
		},
		{
			name: "membership denied", user: "u1", space: "s1", code: "ACCESS_DENIED",
			setup: func(d *fakeDirectory) { d.denied["u1/s1"] = true },
		},
		{name: "subject mismatch", user: "u1", space: "s1", subject: "u2", code: "ACCESS_DENIED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DirectoryTimeout = 30 * time.Millisecond
			h := newHarness(t, WithConfig(cfg))
			if tt.setup != nil {
				tt.setup(h.dir)
			}
			c := newFakeConn("c1", tt.subject)
			require.NoError(t, h.svc.Lifecycle.Connect(c))

			r := h.join(c, tt.user, tt.space, 0, 0)

			assert.Equal(t, StatusFailed, r.Status)
			assert.Equal(t, tt.code, r.Code)
			assert.Equal(t, tt.retryable, r.Retryable)
			assert.False(t, h.svc.Index.IsJoined("c1"))
			assert.Equal(t, int64(1), h.metrics.errorCount(tt.code))
		})
	}
}

func TestJoinWithMatchingSubject(t *testing.T) {
	h := newHarness(t)
	c := newFakeConn("c1", "u1")
	require.NoError(t, h.svc.Lifecycle.Connect(c))
	h.mustJoin(c, "u1", "s1", 0, 0)
}

func TestLeaveAndRejoin(t *testing.T) {
	h := newHarness(t)
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c1, "u1", "s1", 0, 0)
	h.mustJoin(c2, "u2", "s1", 0, 0)
	c2.reset()

	r := h.send(c1, EventLeaveSpace, nil)
	require.Equal(t, StatusSuccess, r.Status)
	assert.Len(t, c2.broadcasts(t, EventUserLeft), 1)
	assert.Empty(t, c1.broadcasts(t, EventUserLeft))
	assert.False(t, h.svc.Index.IsJoined("c1"))

	assert.Equal(t, "NOT_JOINED", h.send(c1, EventLeaveSpace, nil).Code)

	res := h.mustJoin(c1, "u1", "s2", 5, 5)
	assert.Equal(t, "s2", res.SpaceID)
	assert.Equal(t, 1, h.svc.SpaceUserCount("s1"))
	assert.Equal(t, 1, h.svc.SpaceUserCount("s2"))
}

func TestActionBroadcast(t *testing.T) {
	h := newHarness(t)
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c1, "u1", "s1", 0, 0)
	h.mustJoin(c2, "u2", "s1", 0, 0)
	c1.reset()
	c2.reset()

	r := h.send(c1, EventAction, map[string]any{
		"action":   "wave",
		"position": map[string]any{"x": 3, "y": 4, "direction": "left"},
		"data":     map[string]any{"emoji": "👋"},
	})
	require.Equal(t, StatusSuccess, r.Status)

	for _, c := range []*fakeConn{c1, c2} {
		acts := c.broadcasts(t, EventUserAction)
		require.Len(t, acts, 1)
		p := decodePayload[UserActionPayload](t, acts[0])
		assert.Equal(t, "wave", p.Action)
		assert.Equal(t, &Position{X: 3, Y: 4, Direction: "left"}, p.Position)
		assert.JSONEq(t, `{"emoji":"👋"}`, string(p.Data))
	}

	m, _ := h.svc.Index.MemberOf("c1")
	assert.Equal(t, Position{X: 3, Y: 4, Direction: "left"}, m.Position)
}

func TestChatPersistsAndBroadcasts(t *testing.T) {
	h := newHarness(t)
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c1, "u1", "s1", 0, 0)
	h.mustJoin(c2, "u2", "s1", 0, 0)

	r := h.send(c1, EventChat, map[string]any{"message": "hello <world> & all"})
	require.Equal(t, StatusSuccess, r.Status)

	require.Len(t, h.chat.saved, 1)
	saved := h.chat.saved[0]
	assert.Equal(t, "msg-1", saved.ID)
	assert.Equal(t, "s1", saved.SpaceID)
	assert.Equal(t, "alice", saved.Username)

	for _, c := range []*fakeConn{c1, c2} {
		msgs := c.broadcasts(t, EventChatMessage)
		require.Len(t, msgs, 1)
		p := decodePayload[ChatMessagePayload](t, msgs[0])
		assert.Equal(t, ChatMessagePayload{
			ID:        "msg-1",
			UserID:    "u1",
			Username:  "alice",
			AvatarURL: "https://avatars.example/alice.png",
			SpaceID:   "s1",
			Message:   "hello <world> & all",
			Timestamp: fixedNow.UnixMilli(),
		}, p)
	}
}

func TestChatPersistFailureStillDelivers(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := newHarness(t, WithLogger(logger.FromZap(zap.New(core))))
	h.chat.err = stderrors.New("disk full")
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c1, "u1", "s1", 0, 0)
	h.mustJoin(c2, "u2", "s1", 0, 0)

	r := h.send(c1, EventChat, map[string]any{"message": "still here"})

	assert.Equal(t, StatusSuccess, r.Status)
	assert.Len(t, c2.broadcasts(t, EventChatMessage), 1)
	assert.Len(t, c1.broadcasts(t, EventChatMessage), 1)
	assert.Equal(t, int64(1), h.metrics.persistFailed.Load())

	failed := logs.FilterMessage("chat persist failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, true, fields["persist_failed"])
	assert.Equal(t, "c1", fields["conn_id"])
	assert.Equal(t, "CHAT", fields["event"])
}

func TestSignalRelay(t *testing.T) {
	h := newHarness(t)
	c1, c2 := h.connect("c1"), h.connect("c2")
	h.mustJoin(c1, "u1", "s1", 0, 0)
	h.mustJoin(c2, "u2", "s2", 0, 0)
	c2.reset()

	signal := `{ "type": "offer", "sdp": "v=0\r\no=- <x> & y" }`
	raw := []byte(`{"type":"AUDIO","payload":{"targetUserId":"u2","signal":` + signal + `}}`)
	r := h.sendRaw(c1, raw)
	require.Equal(t, StatusSuccess, r.Status)

	c2.mu.Lock()
	require.Len(t, c2.frames, 1)
	frame := c2.frames[0]
	c2.mu.Unlock()

	assert.True(t, json.Valid(frame))
	assert.True(t, bytes.Contains(frame, []byte(signal)), "signal must be relayed verbatim: %s", frame)

	var got struct {
		Type    string `json:"type"`
		Payload struct {
			FromUserID string `json:"fromUserId"`
			SpaceID    string `json:"spaceId"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, "AUDIO", got.Type)
	assert.Equal(t, "u1", got.Payload.FromUserID)
	assert.Equal(t, "s1", got.Payload.SpaceID)
}

func TestSignalTargetOffline(t *testing.T) {
	h := newHarness(t)
	c1 := h.connect("c1")
	h.mustJoin(c1, "u1", "s1", 0, 0)

	r := h.send(c1, EventVideo, map[string]any{"targetUserId": "u9", "signal": "x"})
	assert.Equal(t, "TARGET_OFFLINE", r.Code)
}

func TestProtocolErrorsKeepConnection(t *testing.T) {
	h := newHarness(t)
	c1 := h.connect("c1")

	tests := []struct {
		raw   string
		code  string
		field string
	}{
		{`not json`, "MALFORMED_PAYLOAD", ""},
		{`{"type":"TELEPORT","payload":{}}`, "UNKNOWN_EVENT_TYPE", ""},
		{`{"type":"JOIN_SPACE","payload":{"spaceId":"s1"}}`, "INVALID_PAYLOAD", "userId"},
	}
	for _, tt := range tests {
		r := h.sendRaw(c1, []byte(tt.raw))
		assert.Equal(t, StatusFailed, r.Status, tt.raw)
		assert.Equal(t, tt.code, r.Code, tt.raw)
		assert.Equal(t, tt.field, r.Field, tt.raw)
	}
	assert.False(t, c1.closed.Load())
	h.mustJoin(c1, "u1", "s1", 0, 0)
}

func TestBroadcastExcludesSender(t *testing.T) {
	h := newHarness(t)
	const n = 5
	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = h.connect(fmt.Sprintf("c%d", i+1))
		h.mustJoin(conns[i], fmt.Sprintf("u%d", i+1), "s1", 0, 0)
	}
	for _, c := range conns {
		c.reset()
	}

	report := h.svc.Broadcaster.BroadcastToSpace("s1", EventUserMoved, []byte(`{"type":"USER_MOVED"}`), "c3")

	assert.Equal(t, n-1, report.Targets)
	assert.Equal(t, n-1, report.Delivered)
	assert.Empty(t, report.Failed)
	for _, c := range conns {
		want := 1
		if c.id == "c3" {
			want = 0
		}
		assert.Equal(t, want, c.frameCount(), c.id)
	}
}

func TestDeadConnectionEvicted(t *testing.T) {
	h := newHarness(t)
	c1, c2, c3 := h.connect("c1"), h.connect("c2"), h.connect("c3")
	h.mustJoin(c1, "u1", "s1", 0, 0)
	h.mustJoin(c2, "u2", "s1", 0, 0)
	h.mustJoin(c3, "u3", "s1", 0, 0)
	c2.fail.Store(true)

	r := h.send(c1, EventMove, map[string]any{"x": 1, "y": 1, "direction": "up"})
	require.Equal(t, StatusSuccess, r.Status)
	assert.Len(t, c3.broadcasts(t, EventUserMoved), 1)

	assert.Eventually(t, func() bool {
		return c2.closed.Load() && !h.svc.Index.IsJoined("c2")
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(c3.broadcasts(t, EventUserLeft)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), h.metrics.evictions.Load())
}

func TestSessionReplaced(t *testing.T) {
	h := newHarness(t)
	old, other, fresh := h.connect("old"), h.connect("other"), h.connect("fresh")
	h.mustJoin(old, "u1", "s1", 0, 0)
	h.mustJoin(other, "u2", "s1", 0, 0)
	other.reset()

	res := h.mustJoin(fresh, "u1", "s1", 9, 9)

	// 旧会话已被摘除，新会话的成员列表里只有 u2
	require.Len(t, res.Users, 1)
	assert.Equal(t, "u2", res.Users[0].User.ID)

	left := other.broadcasts(t, EventUserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "u1", decodePayload[UserLeftPayload](t, left[0]).UserID)
	assert.Len(t, other.broadcasts(t, EventUserJoined), 1)

	conn, ok := h.svc.Index.ConnectionOf("u1")
	require.True(t, ok)
	assert.Equal(t, "fresh", conn.ID())
	assert.False(t, h.svc.Index.IsJoined("old"))
	assert.Equal(t, 2, h.svc.SpaceUserCount("s1"))

	assert.Eventually(t, func() bool {
		return old.closeCode.Load() == CloseCodeSessionReplaced
	}, time.Second, 5*time.Millisecond)

	// 传输层随后上报旧连接断开，不再广播
	h.svc.Lifecycle.Disconnect(old)
	assert.Len(t, other.broadcasts(t, EventUserLeft), 1)
	conn, ok = h.svc.Index.ConnectionOf("u1")
	require.True(t, ok)
	assert.Equal(t, "fresh", conn.ID())
}

// TestReplacedSessionCannotRejoin 测试被顶替的旧连接无法再次加入并顶掉新会话
func TestReplacedSessionCannotRejoin(t *testing.T) {
	h := newHarness(t)
	old, fresh := h.connect("old"), h.connect("fresh")
	h.mustJoin(old, "u1", "s1", 0, 0)
	h.mustJoin(fresh, "u1", "s1", 1, 1)

	// 旧连接的传输层还未关闭时仍可能送达一帧 JOIN，不应产生回复
	before := old.frameCount()
	raw, err := json.Marshal(map[string]any{
		"type": EventJoinSpace,
		"payload": map[string]any{
			"spaceId": "s1",
			"userId":  "u1",
			"initialPosition": map[string]any{
				"x": 0, "y": 0, "direction": "down",
			},
		},
	})
	require.NoError(t, err)
	h.svc.Lifecycle.Receive(context.Background(), old, raw)
	assert.Equal(t, before, old.frameCount())
	h.dir.mu.Lock()
	assert.Equal(t, []string{"u1/s1", "u1/s1"}, h.dir.recorded)
	h.dir.mu.Unlock()

	assert.False(t, h.svc.Index.IsJoined("old"))
	assert.True(t, h.svc.Index.IsJoined("fresh"))

	h.svc.Lifecycle.Disconnect(old)
	conn, ok := h.svc.Index.ConnectionOf("u1")
	require.True(t, ok)
	assert.Equal(t, "fresh", conn.ID())
	assert.True(t, h.svc.Index.IsJoined("fresh"))
	assert.Equal(t, 1, h.svc.SpaceUserCount("s1"))
}

func TestConcurrentJoinSameUser(t *testing.T) {
	h := newHarness(t)
	const n = 20
	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = h.connect(fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			h.join(c, "u1", "big", 0, 0)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, h.svc.SpaceUserCount("big"))
	conn, ok := h.svc.Index.ConnectionOf("u1")
	require.True(t, ok)

	joined := 0
	for _, c := range conns {
		if h.svc.Index.IsJoined(c.id) {
			joined++
			assert.Equal(t, conn.ID(), c.id)
		}
	}
	assert.Equal(t, 1, joined)
}

func TestPanicRecovered(t *testing.T) {
	h := newHarness(t, WithMiddleware(func(ctx context.Context, req *Request, next NextFunc) (*Result, error) {
		if _, ok := req.Event.(*Chat); ok {
			panic("boom")
		}
		return next(ctx)
	}))
	c1 := h.connect("c1")
	h.mustJoin(c1, "u1", "s1", 0, 0)

	r := h.send(c1, EventChat, map[string]any{"message": "x"})
	assert.Equal(t, "INTERNAL", r.Code)

	// 之后的事件照常处理
	assert.Equal(t, StatusSuccess, h.send(c1, EventMove, map[string]any{"x": 1, "y": 1, "direction": "up"}).Status)
}

func TestUseAfterFreeze(t *testing.T) {
	h := newHarness(t)
	h.svc.Dispatcher.Freeze()
	err := h.svc.Dispatcher.Use(Recovery(nil))
	assert.ErrorIs(t, err, ErrDispatcherFrozen)
}

func TestReceiveOnClosedConnection(t *testing.T) {
	h := newHarness(t)
	c1 := h.connect("c1")
	h.svc.Lifecycle.Disconnect(c1)

	raw, _ := json.Marshal(map[string]any{
		"type": EventJoinSpace,
		"payload": map[string]any{
			"spaceId": "s1", "userId": "u1",
			"initialPosition": map[string]any{"x": 0, "y": 0, "direction": "down"},
		},
	})
	h.svc.Lifecycle.Receive(context.Background(), c1, raw)

	assert.Equal(t, 0, c1.frameCount())
	assert.Equal(t, 0, h.svc.SpaceUserCount("s1"))
}

// 随机事件序列下检查三张表始终一致
func TestStateMachineInvariant(t *testing.T) {
	h := newHarness(t)
	rng := rand.New(rand.NewSource(42))
	spaces := []string{"s1", "s2", "big"}
	users := []string{"u1", "u2", "u3", "u4"}

	conns := make(map[string]*fakeConn, len(users)) // userID -> conn
	gen := 0
	reconnect := func(u string) {
		gen++
		conns[u] = h.connect(fmt.Sprintf("%s-%d", u, gen))
	}
	for _, u := range users {
		reconnect(u)
	}

	check := func(step int) {
		joined := 0
		for _, u := range users {
			c := conns[u]
			m, ok := h.svc.Index.MemberOf(c.id)
			owner, online := h.svc.Index.ConnectionOf(u)
			if !ok {
				assert.False(t, online, "step %d: %s online without membership", step, u)
				for _, s := range spaces {
					for _, mc := range h.svc.Index.MembersOf(s) {
						assert.NotEqual(t, c.id, mc.ID(), "step %d", step)
					}
				}
				continue
			}
			joined++
			require.True(t, online, "step %d", step)
			assert.Equal(t, c.id, owner.ID(), "step %d", step)
			count := 0
			for _, s := range spaces {
				for _, mc := range h.svc.Index.MembersOf(s) {
					if mc.ID() == c.id {
						count++
						assert.Equal(t, m.SpaceID, s, "step %d", step)
					}
				}
			}
			assert.Equal(t, 1, count, "step %d: %s in %d spaces", step, c.id, count)
		}
		assert.Equal(t, joined, h.svc.Stats().Members, "step %d", step)
	}

	for step := 0; step < 400; step++ {
		u := users[rng.Intn(len(users))]
		c := conns[u]
		switch rng.Intn(6) {
		case 0, 1:
			h.join(c, u, spaces[rng.Intn(len(spaces))], float64(rng.Intn(100)), float64(rng.Intn(100)))
		case 2:
			h.send(c, EventLeaveSpace, nil)
		case 3:
			h.send(c, EventMove, map[string]any{"x": rng.Intn(100), "y": rng.Intn(100), "direction": "up"})
		case 4:
			h.send(c, EventChat, map[string]any{"message": "hi"})
		case 5:
			h.svc.Lifecycle.Disconnect(c)
			reconnect(u)
		}
		check(step)
	}
}
