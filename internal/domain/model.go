package domain

import (
	"time"
)

// TagModel is the GORM model for the tags table.
type TagModel struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (TagModel) TableName() string { return "tags" }

func (m *TagModel) ToDomain() Tag {
	return Tag{ID: m.ID, Name: m.Name}
}

// CategoryModel is the GORM model for the categories table.
type CategoryModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"type:varchar(100);uniqueIndex;not null"`
}

func (CategoryModel) TableName() string { return "categories" }

// UserModel is the read side of the user directory owned by the account service.
type UserModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Username  string    `gorm:"type:varchar(50);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserModel) TableName() string { return "users" }

// RoomModel is the GORM model for the rooms table.
//
// ActiveTitle mirrors Title while the room is active and is NULL once it is
// closed. Its unique index enforces "title unique among active rooms" on
// every supported driver, since NULLs never collide.
type RoomModel struct {
	ID           string             `gorm:"type:varchar(36);primaryKey"`
	Title        string             `gorm:"type:varchar(200);index;not null"`
	ActiveTitle  *string            `gorm:"type:varchar(200);uniqueIndex"`
	JoinCode     string             `gorm:"type:varchar(32);uniqueIndex;not null"`
	ThumbnailURL string             `gorm:"type:varchar(1024)"`
	CategoryID   uint               `gorm:"index;not null"`
	HostUserID   string             `gorm:"type:varchar(36);index;not null"`
	IsActive     bool               `gorm:"index;not null;default:true"`
	Hashtags     []RoomHashtagModel `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time          `gorm:"autoCreateTime"`
	ClosedAt     *time.Time
}

func (RoomModel) TableName() string { return "rooms" }

// ToDomain converts RoomModel to domain Room. Hashtags must be preloaded
// in position order.
func (m *RoomModel) ToDomain() *Room {
	ids := make([]uint, len(m.Hashtags))
	for i, h := range m.Hashtags {
		ids[i] = h.TagID
	}
	return &Room{
		ID:           m.ID,
		Title:        m.Title,
		JoinCode:     m.JoinCode,
		ThumbnailURL: m.ThumbnailURL,
		CategoryID:   m.CategoryID,
		HostUserID:   m.HostUserID,
		IsActive:     m.IsActive,
		HashtagIDs:   ids,
		CreatedAt:    m.CreatedAt,
		ClosedAt:     m.ClosedAt,
	}
}

// RoomToModel converts domain Room to RoomModel, including hashtag links.
func RoomToModel(r *Room) *RoomModel {
	m := &RoomModel{
		ID:           r.ID,
		Title:        r.Title,
		JoinCode:     r.JoinCode,
		ThumbnailURL: r.ThumbnailURL,
		CategoryID:   r.CategoryID,
		HostUserID:   r.HostUserID,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		ClosedAt:     r.ClosedAt,
	}
	if r.IsActive {
		title := r.Title
		m.ActiveTitle = &title
	}
	m.Hashtags = make([]RoomHashtagModel, len(r.HashtagIDs))
	for i, id := range r.HashtagIDs {
		m.Hashtags[i] = RoomHashtagModel{RoomID: r.ID, TagID: id, Position: i}
	}
	return m
}

// RoomHashtagModel links a room to a tag. Position keeps the order the
// host typed the hashtags in.
type RoomHashtagModel struct {
	RoomID   string `gorm:"type:varchar(36);primaryKey"`
	TagID    uint   `gorm:"primaryKey;index"`
	Position int    `gorm:"not null"`
}

func (RoomHashtagModel) TableName() string { return "room_hashtags" }

// UserHashtagModel records a user's interest in a tag.
type UserHashtagModel struct {
	UserID    string    `gorm:"type:varchar(36);primaryKey"`
	TagID     uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (UserHashtagModel) TableName() string { return "user_hashtags" }

// RoomVisitModel is one entry of a user's view history.
type RoomVisitModel struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"type:varchar(36);index:idx_visits_user_time,priority:1;not null"`
	RoomID    string    `gorm:"type:varchar(36);not null"`
	VisitedAt time.Time `gorm:"index:idx_visits_user_time,priority:2;not null"`
}

func (RoomVisitModel) TableName() string { return "room_visits" }

// Models lists every table for auto-migration.
func Models() []interface{} {
	return []interface{}{
		&TagModel{},
		&CategoryModel{},
		&UserModel{},
		&RoomModel{},
		&RoomHashtagModel{},
		&UserHashtagModel{},
		&RoomVisitModel{},
	}
}
