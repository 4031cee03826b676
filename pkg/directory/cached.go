package directory

import (
	"context"
	"time"

	"github.com/tokmz/spaces/pkg/cache"
	"github.com/tokmz/spaces/pkg/presence"
)

// Cached 为用户与空间查询加读穿透缓存
// 未找到的结果不缓存，RecordSpaceMembership 直接透传
type Cached struct {
	next   presence.Directory
	users  *cache.Loader[presence.User]
	spaces *cache.Loader[presence.Space]
}

// NewCached 创建带缓存的目录
func NewCached(next presence.Directory, c cache.Cache, ttl time.Duration) *Cached {
	return &Cached{
		next:   next,
		users:  cache.NewLoader[presence.User](c, ttl),
		spaces: cache.NewLoader[presence.Space](c, ttl),
	}
}

func userKey(id string) string  { return "directory:user:" + id }
func spaceKey(id string) string { return "directory:space:" + id }

// GetUser 查询用户
func (c *Cached) GetUser(ctx context.Context, userID string) (*presence.User, error) {
	u, err := c.users.Load(ctx, userKey(userID), func(ctx context.Context) (presence.User, error) {
		u, err := c.next.GetUser(ctx, userID)
		if err != nil {
			return presence.User{}, err
		}
		return *u, nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetSpace 查询空间
func (c *Cached) GetSpace(ctx context.Context, spaceID string) (*presence.Space, error) {
	s, err := c.spaces.Load(ctx, spaceKey(spaceID), func(ctx context.Context) (presence.Space, error) {
		s, err := c.next.GetSpace(ctx, spaceID)
		if err != nil {
			return presence.Space{}, err
		}
		return *s, nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// RecordSpaceMembership 透传
func (c *Cached) RecordSpaceMembership(ctx context.Context, userID, spaceID string) error {
	return c.next.RecordSpaceMembership(ctx, userID, spaceID)
}

// InvalidateUser 失效用户缓存
func (c *Cached) InvalidateUser(ctx context.Context, userID string) error {
	return c.users.Invalidate(ctx, userKey(userID))
}

// InvalidateSpace 失效空间缓存
func (c *Cached) InvalidateSpace(ctx context.Context, spaceID string) error {
	return c.spaces.Invalidate(ctx, spaceKey(spaceID))
}
