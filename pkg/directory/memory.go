package directory

import (
	"context"
	"sync"

	"github.com/tokmz/spaces/pkg/presence"
)

// Memory 内存目录，数据来自种子文件，适合开发与测试
type Memory struct {
	mu      sync.RWMutex
	users   map[string]presence.User
	spaces  map[string]presence.Space
	allow   map[string]map[string]bool // spaceID -> userIDs
	members map[string]int             // spaceID/userID -> 进入次数
}

// NewMemory 创建内存目录
func NewMemory(seed *Seed) *Memory {
	m := &Memory{
		users:   make(map[string]presence.User),
		spaces:  make(map[string]presence.Space),
		allow:   make(map[string]map[string]bool),
		members: make(map[string]int),
	}
	if seed == nil {
		return m
	}
	for _, u := range seed.Users {
		m.users[u.ID] = presence.User{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
	}
	for _, sp := range seed.Spaces {
		m.spaces[sp.ID] = presence.Space{
			ID:       sp.ID,
			Name:     sp.Name,
			Width:    sp.Width,
			Height:   sp.Height,
			Capacity: sp.Capacity,
			OwnerID:  sp.OwnerID,
			Private:  sp.Private,
		}
		if len(sp.Allow) > 0 {
			set := make(map[string]bool, len(sp.Allow))
			for _, uid := range sp.Allow {
				set[uid] = true
			}
			m.allow[sp.ID] = set
		}
	}
	return m
}

// GetUser 查询用户
func (m *Memory) GetUser(ctx context.Context, userID string) (*presence.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, presence.ErrUserNotFound
	}
	return &u, nil
}

// GetSpace 查询空间
func (m *Memory) GetSpace(ctx context.Context, spaceID string) (*presence.Space, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spaces[spaceID]
	if !ok {
		return nil, presence.ErrSpaceNotFound
	}
	return &s, nil
}

// RecordSpaceMembership 检查私有空间权限并记录进入
func (m *Memory) RecordSpaceMembership(ctx context.Context, userID, spaceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spaces[spaceID]
	if !ok {
		return presence.ErrSpaceNotFound
	}
	if s.Private && s.OwnerID != userID && !m.allow[spaceID][userID] {
		return presence.ErrAccessDenied
	}
	m.members[spaceID+"/"+userID]++
	return nil
}

// JoinCount 用户进入空间的次数
func (m *Memory) JoinCount(userID, spaceID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[spaceID+"/"+userID]
}

// PutUser 新增或替换用户
func (m *Memory) PutUser(u presence.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// PutSpace 新增或替换空间
func (m *Memory) PutSpace(s presence.Space) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[s.ID] = s
}
