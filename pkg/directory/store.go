package directory

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tokmz/spaces/pkg/presence"
)

// Store 基于 GORM 的目录
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore 创建目录存储
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate 自动迁移表结构
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(Models()...)
}

// GetUser 查询用户
func (s *Store) GetUser(ctx context.Context, userID string) (*presence.User, error) {
	var m UserModel
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&m).Error
	if err != nil {
		return nil, translate(err, presence.ErrUserNotFound)
	}
	return m.toUser(), nil
}

// GetSpace 查询空间
func (s *Store) GetSpace(ctx context.Context, spaceID string) (*presence.Space, error) {
	var m SpaceModel
	err := s.db.WithContext(ctx).Where("id = ?", spaceID).Take(&m).Error
	if err != nil {
		return nil, translate(err, presence.ErrSpaceNotFound)
	}
	return m.toSpace(), nil
}

// RecordSpaceMembership 检查私有空间权限并记录进入
func (s *Store) RecordSpaceMembership(ctx context.Context, userID, spaceID string) error {
	db := s.db.WithContext(ctx)

	var space SpaceModel
	if err := db.Select("id", "owner_id", "private").Where("id = ?", spaceID).Take(&space).Error; err != nil {
		return translate(err, presence.ErrSpaceNotFound)
	}
	if space.Private && space.OwnerID != userID {
		var n int64
		if err := db.Model(&SpaceAccess{}).Where("space_id = ? AND user_id = ?", spaceID, userID).Count(&n).Error; err != nil {
			return presence.ErrUnavailable.WithError(err)
		}
		if n == 0 {
			return presence.ErrAccessDenied
		}
	}

	now := s.now()
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "space_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_joined_at": now,
			"join_count":     gorm.Expr("? + 1", clause.Column{Table: clause.CurrentTable, Name: "join_count"}),
		}),
	}).Create(&SpaceMember{
		SpaceID:       spaceID,
		UserID:        userID,
		FirstJoinedAt: now,
		LastJoinedAt:  now,
		JoinCount:     1,
	}).Error
	if err != nil {
		return presence.ErrUnavailable.WithError(err)
	}
	return nil
}

// Seed 写入种子数据，已存在的记录按主键更新
func (s *Store) Seed(ctx context.Context, seed *Seed) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := func() *gorm.DB { return tx.Clauses(clause.OnConflict{UpdateAll: true}) }
		for _, u := range seed.Users {
			if err := upsert().Create(&UserModel{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}).Error; err != nil {
				return err
			}
		}
		for _, sp := range seed.Spaces {
			m := &SpaceModel{
				ID:       sp.ID,
				Name:     sp.Name,
				Width:    sp.Width,
				Height:   sp.Height,
				Capacity: sp.Capacity,
				OwnerID:  sp.OwnerID,
				Private:  sp.Private,
			}
			if err := upsert().Create(m).Error; err != nil {
				return err
			}
			for _, uid := range sp.Allow {
				err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&SpaceAccess{SpaceID: sp.ID, UserID: uid}).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Membership 查询进入记录
func (s *Store) Membership(ctx context.Context, userID, spaceID string) (*SpaceMember, error) {
	var m SpaceMember
	err := s.db.WithContext(ctx).Where("space_id = ? AND user_id = ?", spaceID, userID).Take(&m).Error
	if err != nil {
		return nil, translate(err, presence.ErrNotJoined)
	}
	return &m, nil
}

// translate 将记录不存在映射为 notFound，其余错误视为不可用
func translate(err error, notFound error) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return presence.ErrUnavailable.WithError(err)
}
