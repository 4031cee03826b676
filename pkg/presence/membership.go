package presence

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Conn 一条已建立的客户端连接
type Conn interface {
	// ID 连接唯一标识
	ID() string
	// Subject 握手时认证的用户标识，匿名连接为空
	Subject() string
	// Send 非阻塞入队一帧，队列满或连接关闭时返回错误
	Send(data []byte) error
	// Close 关闭连接，可重复调用
	Close()
}

// Member 已加入空间的连接状态
type Member struct {
	ConnID    string
	UserID    string
	Username  string
	AvatarURL string
	SpaceID   string
	Position  Position
	JoinedAt  time.Time
}

// Info 广播用用户信息
func (m *Member) Info() UserInfo {
	return UserInfo{ID: m.UserID, Username: m.Username, AvatarURL: m.AvatarURL}
}

type connEntry struct {
	mu     sync.Mutex
	conn   Conn
	member *Member
	closed bool
}

type spaceEntry struct {
	conn   Conn
	member Member
	seq    uint64
}

type spaceSet struct {
	mu         sync.RWMutex
	members    map[string]*spaceEntry // connID -> entry
	emptySince time.Time
	removed    bool // 已被回收，持有者需重新获取
}

// Stats 索引统计
type Stats struct {
	Connections int `json:"connections"`
	Members     int `json:"members"`
	Spaces      int `json:"spaces"`
}

// Index 成员索引
//
// 维护 连接 -> 成员、空间 -> 连接集合、用户 -> 连接 三张表。
// 锁顺序固定为 连接锁 -> 空间锁，用户表为无锁 sync.Map。
type Index struct {
	conns  sync.Map // connID -> *connEntry
	spaces sync.Map // spaceID -> *spaceSet
	users  sync.Map // userID -> connID

	seq         atomic.Uint64
	connCount   atomic.Int64
	memberCount atomic.Int64
	now         func() time.Time
}

// NewIndex 创建成员索引
func NewIndex() *Index {
	return &Index{now: time.Now}
}

// RegisterConnection 登记新连接，状态为 Connected
func (idx *Index) RegisterConnection(conn Conn) error {
	if _, loaded := idx.conns.LoadOrStore(conn.ID(), &connEntry{conn: conn}); loaded {
		return ErrConnectionExists
	}
	idx.connCount.Add(1)
	return nil
}

func (idx *Index) entry(connID string) (*connEntry, bool) {
	v, ok := idx.conns.Load(connID)
	if !ok {
		return nil, false
	}
	return v.(*connEntry), true
}

// acquireSpace 获取并写锁定空间集合，不存在时创建
func (idx *Index) acquireSpace(spaceID string) *spaceSet {
	for {
		v, _ := idx.spaces.LoadOrStore(spaceID, &spaceSet{
			members:    make(map[string]*spaceEntry),
			emptySince: idx.now(),
		})
		set := v.(*spaceSet)
		set.mu.Lock()
		if !set.removed {
			return set
		}
		set.mu.Unlock()
	}
}

// AttachMember 将连接加入空间
//
// capacity > 0 时在空间锁内检查容量，同一用户的旧会话不计入。
// 同一用户已有其他连接在线时，用户表指向新连接并返回旧连接，
// 由调用方负责摘除旧连接的成员状态并关闭它。
func (idx *Index) AttachMember(connID string, m Member, capacity int) (evicted Conn, err error) {
	e, ok := idx.entry(connID)
	if !ok {
		return nil, ErrTransportClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrTransportClosed
	}
	if e.member != nil {
		return nil, ErrAlreadyJoined
	}

	m.ConnID = connID
	if m.JoinedAt.IsZero() {
		m.JoinedAt = idx.now()
	}

	set := idx.acquireSpace(m.SpaceID)
	if capacity > 0 && len(set.members) >= capacity && !set.hasUser(m.UserID) {
		set.mu.Unlock()
		return nil, ErrSpaceFull
	}
	set.members[connID] = &spaceEntry{conn: e.conn, member: m, seq: idx.seq.Add(1)}
	set.emptySince = time.Time{}
	set.mu.Unlock()

	e.member = &m
	idx.memberCount.Add(1)

	if prev, loaded := idx.users.Swap(m.UserID, connID); loaded && prev.(string) != connID {
		if old, ok := idx.entry(prev.(string)); ok {
			evicted = old.conn
		}
	}
	return evicted, nil
}

func (s *spaceSet) hasUser(userID string) bool {
	for _, se := range s.members {
		if se.member.UserID == userID {
			return true
		}
	}
	return false
}

// HasCapacity 空间当前是否还能容纳该用户
func (idx *Index) HasCapacity(spaceID, userID string, capacity int) bool {
	if capacity <= 0 {
		return true
	}
	v, ok := idx.spaces.Load(spaceID)
	if !ok {
		return true
	}
	set := v.(*spaceSet)
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.members) < capacity || set.hasUser(userID)
}

// UpdatePosition 更新已加入连接的位置
func (idx *Index) UpdatePosition(connID string, pos Position) (Member, error) {
	e, ok := idx.entry(connID)
	if !ok {
		return Member{}, ErrNotJoined
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.member == nil {
		return Member{}, ErrNotJoined
	}
	if v, ok := idx.spaces.Load(e.member.SpaceID); ok {
		set := v.(*spaceSet)
		set.mu.Lock()
		if se, ok := set.members[connID]; ok {
			se.member.Position = pos
		}
		set.mu.Unlock()
	}
	e.member.Position = pos
	return *e.member, nil
}

// DetachMember 将连接移出所在空间，连接保持 Connected
func (idx *Index) DetachMember(connID string) (Member, bool) {
	e, ok := idx.entry(connID)
	if !ok {
		return Member{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return idx.detachLocked(connID, e)
}

func (idx *Index) detachLocked(connID string, e *connEntry) (Member, bool) {
	if e.member == nil {
		return Member{}, false
	}
	m := *e.member
	e.member = nil

	if v, ok := idx.spaces.Load(m.SpaceID); ok {
		set := v.(*spaceSet)
		set.mu.Lock()
		delete(set.members, connID)
		if len(set.members) == 0 {
			set.emptySince = idx.now()
		}
		set.mu.Unlock()
	}
	// 用户已在新连接上重新加入时保留新映射
	idx.users.CompareAndDelete(m.UserID, connID)
	idx.memberCount.Add(-1)
	return m, true
}

// RetireConnection 将连接标记为关闭并移出空间，记录保留到 UnregisterConnection
// 之后该连接上的 AttachMember 返回 ErrTransportClosed
func (idx *Index) RetireConnection(connID string) (Member, bool) {
	e, ok := idx.entry(connID)
	if !ok {
		return Member{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	return idx.detachLocked(connID, e)
}

// UnregisterConnection 原子地关闭连接状态、移出空间并删除记录
// 返回连接关闭前的成员信息，重复调用返回 false
func (idx *Index) UnregisterConnection(connID string) (Member, bool) {
	v, ok := idx.conns.LoadAndDelete(connID)
	if !ok {
		return Member{}, false
	}
	e := v.(*connEntry)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	idx.connCount.Add(-1)
	return idx.detachLocked(connID, e)
}

func (s *spaceSet) sorted() []*spaceEntry {
	out := make([]*spaceEntry, 0, len(s.members))
	for _, se := range s.members {
		out = append(out, se)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// MembersOf 空间内连接的快照，按加入顺序
func (idx *Index) MembersOf(spaceID string) []Conn {
	v, ok := idx.spaces.Load(spaceID)
	if !ok {
		return nil
	}
	set := v.(*spaceSet)
	set.mu.RLock()
	entries := set.sorted()
	set.mu.RUnlock()

	conns := make([]Conn, len(entries))
	for i, se := range entries {
		conns[i] = se.conn
	}
	return conns
}

// Occupants 空间内成员信息的快照，按加入顺序
func (idx *Index) Occupants(spaceID string) []Member {
	v, ok := idx.spaces.Load(spaceID)
	if !ok {
		return nil
	}
	set := v.(*spaceSet)
	set.mu.RLock()
	entries := set.sorted()
	members := make([]Member, len(entries))
	for i, se := range entries {
		members[i] = se.member
	}
	set.mu.RUnlock()
	return members
}

// ConnectionOf 用户当前在线的连接
func (idx *Index) ConnectionOf(userID string) (Conn, bool) {
	v, ok := idx.users.Load(userID)
	if !ok {
		return nil, false
	}
	e, ok := idx.entry(v.(string))
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// MemberOf 连接的成员信息
func (idx *Index) MemberOf(connID string) (Member, bool) {
	e, ok := idx.entry(connID)
	if !ok {
		return Member{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.member == nil {
		return Member{}, false
	}
	return *e.member, true
}

// IsJoined 连接是否处于 Joined 状态
func (idx *Index) IsJoined(connID string) bool {
	_, ok := idx.MemberOf(connID)
	return ok
}

// IsOpen 连接已注册且未被退役
func (idx *Index) IsOpen(connID string) bool {
	e, ok := idx.entry(connID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// ConnectedUsers 已加入空间的用户ID，升序
func (idx *Index) ConnectedUsers() []string {
	var users []string
	idx.users.Range(func(k, _ any) bool {
		users = append(users, k.(string))
		return true
	})
	sort.Strings(users)
	return users
}

// SpaceUserCount 空间内成员数
func (idx *Index) SpaceUserCount(spaceID string) int {
	v, ok := idx.spaces.Load(spaceID)
	if !ok {
		return 0
	}
	set := v.(*spaceSet)
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.members)
}

// Stats 当前统计
func (idx *Index) Stats() Stats {
	spaces := 0
	idx.spaces.Range(func(_, _ any) bool {
		spaces++
		return true
	})
	return Stats{
		Connections: int(idx.connCount.Load()),
		Members:     int(idx.memberCount.Load()),
		Spaces:      spaces,
	}
}

// Sweep 回收空置超过 ttl 的空间集合，返回回收数量
func (idx *Index) Sweep(ttl time.Duration) int {
	now := idx.now()
	removed := 0
	idx.spaces.Range(func(k, v any) bool {
		set := v.(*spaceSet)
		set.mu.Lock()
		if len(set.members) == 0 && !set.emptySince.IsZero() && now.Sub(set.emptySince) >= ttl {
			set.removed = true
			idx.spaces.CompareAndDelete(k, set)
			removed++
		}
		set.mu.Unlock()
		return true
	})
	return removed
}

// RunSweeper 周期性回收空置空间，ctx 取消后返回
func (idx *Index) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idx.Sweep(ttl)
		}
	}
}
