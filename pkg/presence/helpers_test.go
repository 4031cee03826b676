package presence

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tokmz/spaces/pkg/logger"
)

var errSendFailed = stderrors.New("send queue full")

// fakeConn 记录所有入队帧
type fakeConn struct {
	id      string
	subject string

	mu        sync.Mutex
	frames    [][]byte
	fail      atomic.Bool
	closed    atomic.Bool
	closeCode atomic.Int32
}

func newFakeConn(id, subject string) *fakeConn {
	return &fakeConn{id: id, subject: subject}
}

func (c *fakeConn) ID() string      { return c.id }
func (c *fakeConn) Subject() string { return c.subject }

func (c *fakeConn) Send(data []byte) error {
	if c.fail.Load() || c.closed.Load() {
		return errSendFailed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() { c.closed.Store(true) }

func (c *fakeConn) CloseWithReason(code int, _ string) {
	c.closeCode.Store(int32(code))
	c.closed.Store(true)
}

// received 出站帧的通用解码形态
type received struct {
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	RequestType string          `json:"requestType"`
	Message     string          `json:"message"`
	Error       string          `json:"error"`
	Code        string          `json:"code"`
	Field       string          `json:"field"`
	Retryable   bool            `json:"retryable"`
	Data        json.RawMessage `json:"data"`
}

func (c *fakeConn) received(t *testing.T) []received {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]received, len(c.frames))
	for i, f := range c.frames {
		require.NoError(t, json.Unmarshal(f, &out[i]), string(f))
	}
	return out
}

// broadcasts 指定类型的广播
func (c *fakeConn) broadcasts(t *testing.T, typ EventType) []received {
	t.Helper()
	var out []received
	for _, r := range c.received(t) {
		if r.Type == string(typ) {
			out = append(out, r)
		}
	}
	return out
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// fakeDirectory 内存目录，可注入延迟与错误
type fakeDirectory struct {
	mu       sync.Mutex
	users    map[string]*User
	spaces   map[string]*Space
	denied   map[string]bool
	err      error
	delay    time.Duration
	recorded []string
}

func newFakeDirectory() *fakeDirectory {
	d := &fakeDirectory{
		users:  map[string]*User{},
		spaces: map[string]*Space{},
		denied: map[string]bool{},
	}
	for i, name := range []string{"alice", "bob", "carol", "dave", "erin"} {
		id := fmt.Sprintf("u%d", i+1)
		d.users[id] = &User{ID: id, Username: name, AvatarURL: "https://avatars.example/" + name + ".png"}
	}
	d.spaces["s1"] = &Space{ID: "s1", Name: "Lobby", Width: 800, Height: 600, Capacity: 10}
	d.spaces["s2"] = &Space{ID: "s2", Name: "Garden", Width: 400, Height: 400, Capacity: 10}
	d.spaces["tiny"] = &Space{ID: "tiny", Name: "Booth", Width: 100, Height: 100, Capacity: 1}
	d.spaces["big"] = &Space{ID: "big", Name: "Hall", Width: 2000, Height: 2000, Capacity: 100}
	return d
}

func (d *fakeDirectory) wait(ctx context.Context) error {
	d.mu.Lock()
	delay, err := d.delay, d.err
	d.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (d *fakeDirectory) GetUser(ctx context.Context, userID string) (*User, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (d *fakeDirectory) GetSpace(ctx context.Context, spaceID string) (*Space, error) {
	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.spaces[spaceID]
	if !ok {
		return nil, ErrSpaceNotFound
	}
	return s, nil
}

func (d *fakeDirectory) RecordSpaceMembership(ctx context.Context, userID, spaceID string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denied[userID+"/"+spaceID] {
		return ErrAccessDenied
	}
	d.recorded = append(d.recorded, userID+"/"+spaceID)
	return nil
}

// fakeChatSink 记录聊天消息
type fakeChatSink struct {
	mu    sync.Mutex
	saved []*ChatMessage
	err   error
}

func (s *fakeChatSink) SaveChat(_ context.Context, msg *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, msg)
	return nil
}

// countingMetrics 只统计关心的指标
type countingMetrics struct {
	NoopMetrics
	persistFailed atomic.Int64
	evictions     atomic.Int64
	errors        sync.Map // code -> *atomic.Int64
}

func (m *countingMetrics) IncChatPersistFailed() { m.persistFailed.Add(1) }
func (m *countingMetrics) IncEviction()          { m.evictions.Add(1) }

func (m *countingMetrics) IncEventError(_ string, code string) {
	v, _ := m.errors.LoadOrStore(code, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (m *countingMetrics) errorCount(code string) int64 {
	v, ok := m.errors.Load(code)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

type harness struct {
	t       *testing.T
	svc     *Service
	dir     *fakeDirectory
	chat    *fakeChatSink
	metrics *countingMetrics
	seq     atomic.Int64
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		dir:     newFakeDirectory(),
		chat:    &fakeChatSink{},
		metrics: &countingMetrics{},
	}
	base := []Option{
		WithChatSink(h.chat),
		WithLogger(logger.Nop()),
		WithMetrics(h.metrics),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return fmt.Sprintf("msg-%d", h.seq.Add(1)) }),
		WithTracing(false),
	}
	svc, err := New(h.dir, append(base, opts...)...)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) connect(id string) *fakeConn {
	h.t.Helper()
	c := newFakeConn(id, "")
	require.NoError(h.t, h.svc.Lifecycle.Connect(c))
	return c
}

// send 编码一帧交给生命周期处理，返回该帧的回复
func (h *harness) send(c *fakeConn, typ EventType, payload any) received {
	h.t.Helper()
	raw, err := json.Marshal(map[string]any{"type": typ, "payload": payload})
	require.NoError(h.t, err)
	return h.sendRaw(c, raw)
}

func (h *harness) sendRaw(c *fakeConn, raw []byte) received {
	h.t.Helper()
	before := c.frameCount()
	h.svc.Lifecycle.Receive(context.Background(), c, raw)
	frames := c.received(h.t)
	for i := len(frames) - 1; i >= before; i-- {
		if frames[i].Status != "" {
			return frames[i]
		}
	}
	h.t.Fatalf("no response frame for %s", raw)
	return received{}
}

func (h *harness) join(c *fakeConn, userID, spaceID string, x, y float64) received {
	h.t.Helper()
	return h.send(c, EventJoinSpace, map[string]any{
		"spaceId": spaceID,
		"userId":  userID,
		"initialPosition": map[string]any{
			"x": x, "y": y, "direction": "down",
		},
	})
}

func (h *harness) mustJoin(c *fakeConn, userID, spaceID string, x, y float64) JoinResult {
	h.t.Helper()
	r := h.join(c, userID, spaceID, x, y)
	require.Equal(h.t, StatusSuccess, r.Status, "join failed: %s %s", r.Code, r.Error)
	var res JoinResult
	require.NoError(h.t, json.Unmarshal(r.Data, &res))
	return res
}

func decodePayload[T any](t *testing.T, r received) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Payload, &v))
	return v
}
