package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(userID, spaceID string) Member {
	return Member{UserID: userID, Username: userID, SpaceID: spaceID}
}

func TestIndexAttachDetach(t *testing.T) {
	idx := NewIndex()
	c1 := newFakeConn("c1", "")
	require.NoError(t, idx.RegisterConnection(c1))
	assert.ErrorIs(t, idx.RegisterConnection(c1), ErrConnectionExists)

	evicted, err := idx.AttachMember("c1", member("u1", "s1"), 0)
	require.NoError(t, err)
	assert.Nil(t, evicted)

	m, ok := idx.MemberOf("c1")
	require.True(t, ok)
	assert.Equal(t, "c1", m.ConnID)
	assert.False(t, m.JoinedAt.IsZero())

	_, err = idx.AttachMember("c1", member("u1", "s2"), 0)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	conn, ok := idx.ConnectionOf("u1")
	require.True(t, ok)
	assert.Equal(t, "c1", conn.ID())
	assert.Equal(t, []string{"u1"}, idx.ConnectedUsers())

	m, ok = idx.DetachMember("c1")
	require.True(t, ok)
	assert.Equal(t, "s1", m.SpaceID)
	_, ok = idx.DetachMember("c1")
	assert.False(t, ok)

	_, ok = idx.ConnectionOf("u1")
	assert.False(t, ok)
	assert.Equal(t, 0, idx.SpaceUserCount("s1"))
	assert.Equal(t, Stats{Connections: 1, Members: 0, Spaces: 1}, idx.Stats())
}

func TestIndexAttachUnregistered(t *testing.T) {
	idx := NewIndex()
	_, err := idx.AttachMember("nope", member("u1", "s1"), 0)
	assert.ErrorIs(t, err, ErrTransportClosed)

	c1 := newFakeConn("c1", "")
	require.NoError(t, idx.RegisterConnection(c1))
	_, ok := idx.UnregisterConnection("c1")
	assert.False(t, ok, "not joined")

	_, err = idx.AttachMember("c1", member("u1", "s1"), 0)
	assert.ErrorIs(t, err, ErrTransportClosed)
	assert.Equal(t, 0, idx.SpaceUserCount("s1"))
}

func TestIndexUnregisterJoined(t *testing.T) {
	idx := NewIndex()
	c1, c2 := newFakeConn("c1", ""), newFakeConn("c2", "")
	require.NoError(t, idx.RegisterConnection(c1))
	require.NoError(t, idx.RegisterConnection(c2))
	_, err := idx.AttachMember("c1", member("u1", "s1"), 0)
	require.NoError(t, err)
	_, err = idx.AttachMember("c2", member("u2", "s1"), 0)
	require.NoError(t, err)

	m, ok := idx.UnregisterConnection("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", m.UserID)

	_, ok = idx.UnregisterConnection("c1")
	assert.False(t, ok)

	members := idx.MembersOf("s1")
	require.Len(t, members, 1)
	assert.Equal(t, "c2", members[0].ID())
	assert.Equal(t, Stats{Connections: 1, Members: 1, Spaces: 1}, idx.Stats())
}

func TestIndexCapacity(t *testing.T) {
	idx := NewIndex()
	for i := 1; i <= 3; i++ {
		require.NoError(t, idx.RegisterConnection(newFakeConn(fmt.Sprintf("c%d", i), "")))
	}

	_, err := idx.AttachMember("c1", member("u1", "s1"), 2)
	require.NoError(t, err)
	_, err = idx.AttachMember("c2", member("u2", "s1"), 2)
	require.NoError(t, err)
	assert.False(t, idx.HasCapacity("s1", "u3", 2))
	assert.True(t, idx.HasCapacity("s1", "u1", 2), "existing user may take over")

	_, err = idx.AttachMember("c3", member("u3", "s1"), 2)
	assert.ErrorIs(t, err, ErrSpaceFull)
	assert.False(t, idx.IsJoined("c3"))

	// 同一用户的新连接不受容量限制
	evicted, err := idx.AttachMember("c3", member("u1", "s1"), 2)
	require.NoError(t, err)
	require.NotNil(t, evicted)
	assert.Equal(t, "c1", evicted.ID())
}

func TestIndexUserSlotSurvivesStaleDetach(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.RegisterConnection(newFakeConn("old", "")))
	require.NoError(t, idx.RegisterConnection(newFakeConn("new", "")))

	_, err := idx.AttachMember("old", member("u1", "s1"), 0)
	require.NoError(t, err)
	evicted, err := idx.AttachMember("new", member("u1", "s2"), 0)
	require.NoError(t, err)
	require.Equal(t, "old", evicted.ID())

	_, ok := idx.DetachMember("old")
	require.True(t, ok)

	conn, ok := idx.ConnectionOf("u1")
	require.True(t, ok)
	assert.Equal(t, "new", conn.ID())
}

func TestIndexMembersInJoinOrder(t *testing.T) {
	idx := NewIndex()
	ids := []string{"c5", "c1", "c4", "c2", "c3"}
	for i, id := range ids {
		require.NoError(t, idx.RegisterConnection(newFakeConn(id, "")))
		_, err := idx.AttachMember(id, member(fmt.Sprintf("u%d", i), "s1"), 0)
		require.NoError(t, err)
	}

	var got []string
	for _, c := range idx.MembersOf("s1") {
		got = append(got, c.ID())
	}
	assert.Equal(t, ids, got)

	occupants := idx.Occupants("s1")
	require.Len(t, occupants, len(ids))
	assert.Equal(t, "c5", occupants[0].ConnID)
}

func TestIndexUpdatePosition(t *testing.T) {
	idx := NewIndex()
	require.NoError(t, idx.RegisterConnection(newFakeConn("c1", "")))

	_, err := idx.UpdatePosition("c1", Position{X: 1})
	assert.ErrorIs(t, err, ErrNotJoined)

	_, err = idx.AttachMember("c1", member("u1", "s1"), 0)
	require.NoError(t, err)
	m, err := idx.UpdatePosition("c1", Position{X: 7, Y: 8, Direction: "up"})
	require.NoError(t, err)
	assert.Equal(t, Position{X: 7, Y: 8, Direction: "up"}, m.Position)
	assert.Equal(t, m.Position, idx.Occupants("s1")[0].Position)
}

func TestIndexSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idx := NewIndex()
	idx.now = func() time.Time { return now }

	require.NoError(t, idx.RegisterConnection(newFakeConn("c1", "")))
	_, err := idx.AttachMember("c1", member("u1", "s1"), 0)
	require.NoError(t, err)

	assert.Equal(t, 0, idx.Sweep(time.Minute), "occupied space is kept")

	idx.DetachMember("c1")
	now = now.Add(30 * time.Second)
	assert.Equal(t, 0, idx.Sweep(time.Minute))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, idx.Sweep(time.Minute))
	assert.Equal(t, 0, idx.Stats().Spaces)

	// 回收后可重新创建
	_, err = idx.AttachMember("c1", member("u1", "s1"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.SpaceUserCount("s1"))
}

func TestIndexConcurrentAttachUnregister(t *testing.T) {
	idx := NewIndex()
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, idx.RegisterConnection(newFakeConn(id, "")))
		wg.Add(2)
		go func(id string, i int) {
			defer wg.Done()
			_, _ = idx.AttachMember(id, member(fmt.Sprintf("u%d", i%10), "s1"), 0)
		}(id, i)
		go func(id string) {
			defer wg.Done()
			idx.UnregisterConnection(id)
		}(id)
	}
	wg.Wait()

	// 所有连接都已注销，不应残留任何成员
	assert.Empty(t, idx.MembersOf("s1"))
	assert.Empty(t, idx.ConnectedUsers())
	stats := idx.Stats()
	assert.Equal(t, 0, stats.Connections)
	assert.Equal(t, 0, stats.Members)
}

// TestIndexRetireConnection 测试退役后的连接拒绝加入且注销不重复计数
func TestIndexRetireConnection(t *testing.T) {
	idx := NewIndex()
	c := newFakeConn("c1", "")
	require.NoError(t, idx.RegisterConnection(c))
	_, err := idx.AttachMember("c1", Member{UserID: "u1", SpaceID: "s1"}, 0)
	require.NoError(t, err)

	m, ok := idx.RetireConnection("c1")
	require.True(t, ok)
	assert.Equal(t, "u1", m.UserID)

	_, err = idx.AttachMember("c1", Member{UserID: "u1", SpaceID: "s1"}, 0)
	assert.ErrorIs(t, err, ErrTransportClosed)

	_, ok = idx.UnregisterConnection("c1")
	assert.False(t, ok)
	_, ok = idx.ConnectionOf("u1")
	assert.False(t, ok)
}
