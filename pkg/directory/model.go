package directory

import (
	"time"

	"github.com/tokmz/spaces/pkg/presence"
)

// UserModel 用户表
type UserModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Username  string `gorm:"size:64;not null"`
	AvatarURL string `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) toUser() *presence.User {
	return &presence.User{ID: m.ID, Username: m.Username, AvatarURL: m.AvatarURL}
}

// SpaceModel 空间表
type SpaceModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128;not null"`
	Width     int    `gorm:"not null;default:800"`
	Height    int    `gorm:"not null;default:600"`
	Capacity  int    `gorm:"not null;default:0"`
	OwnerID   string `gorm:"size:64;index"`
	Private   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SpaceModel) TableName() string { return "spaces" }

func (m *SpaceModel) toSpace() *presence.Space {
	return &presence.Space{
		ID:       m.ID,
		Name:     m.Name,
		Width:    m.Width,
		Height:   m.Height,
		Capacity: m.Capacity,
		OwnerID:  m.OwnerID,
		Private:  m.Private,
	}
}

// SpaceAccess 私有空间的访问白名单
type SpaceAccess struct {
	SpaceID   string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

func (SpaceAccess) TableName() string { return "space_access" }

// SpaceMember 用户进入过的空间
type SpaceMember struct {
	SpaceID       string    `gorm:"primaryKey;size:64"`
	UserID        string    `gorm:"primaryKey;size:64;index"`
	FirstJoinedAt time.Time `gorm:"not null"`
	LastJoinedAt  time.Time `gorm:"not null"`
	JoinCount     int       `gorm:"not null;default:1"`
}

func (SpaceMember) TableName() string { return "space_members" }

// Models 全部表模型，用于迁移
func Models() []any {
	return []any{&UserModel{}, &SpaceModel{}, &SpaceAccess{}, &SpaceMember{}}
}
