package domain

import (
	"time"
)

// Tag is a canonical hashtag label.
type Tag struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// Category is read-only reference data.
type Category struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// User is the identity the core trusts for membership and publish checks.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Room represents a live room.
type Room struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	JoinCode     string     `json:"join_code"`
	ThumbnailURL string     `json:"thumbnail_url"`
	CategoryID   uint       `json:"category_id"`
	HostUserID   string     `json:"host_user_id"`
	IsActive     bool       `json:"is_active"`
	HashtagIDs   []uint     `json:"hashtag_ids"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// Membership records that a user is currently present in a room.
type Membership struct {
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	EnteredAt time.Time `json:"entered_at"`
}

// RoomListing is the denormalized view served by the listing aggregator.
// Degraded is set when one of the joined fields could not be loaded.
type RoomListing struct {
	RoomID       string   `json:"room_id"`
	Title        string   `json:"title"`
	JoinCode     string   `json:"join_code"`
	ThumbnailURL string   `json:"thumbnail_url"`
	CategoryName string   `json:"category_name"`
	ViewerCount  int      `json:"viewer_count"`
	Hashtags     []string `json:"hashtags"`
	Degraded     bool     `json:"degraded,omitempty"`
}

// RoomVisit is one entry of a user's view history.
type RoomVisit struct {
	RoomID    string    `json:"room_id"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"is_active"`
	VisitedAt time.Time `json:"visited_at"`
}

// CreateRoomRequest represents a create room request.
// Hashtags is whitespace separated, e.g. "film drama".
type CreateRoomRequest struct {
	Title        string `json:"title" binding:"required"`
	ThumbnailURL string `json:"thumbnail_url"`
	CategoryName string `json:"category_name" binding:"required"`
	HostEmail    string `json:"-"`
	Hashtags     string `json:"hashtags"`
}

// EnterRoomRequest identifies a room by title or by join code.
type EnterRoomRequest struct {
	Title    string `json:"title"`
	JoinCode string `json:"join_code"`
}

// LookupRoomRequest is the query form of EnterRoomRequest.
type LookupRoomRequest struct {
	Title    string `form:"title"`
	JoinCode string `form:"code"`
}

// PublishMessageRequest carries a chat body.
type PublishMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// PublishEmojiRequest carries an emoji reaction.
type PublishEmojiRequest struct {
	EmojiType string `json:"emoji_type" binding:"required"`
}

// HashtagRequest names a user interest tag.
type HashtagRequest struct {
	Name string `json:"name" binding:"required"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	JoinCode     string     `json:"join_code"`
	ThumbnailURL string     `json:"thumbnail_url"`
	CategoryID   uint       `json:"category_id"`
	HostUserID   string     `json:"host_user_id"`
	IsActive     bool       `json:"is_active"`
	HashtagIDs   []uint     `json:"hashtag_ids"`
	ViewerCount  int        `json:"viewer_count"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// ToResponse converts Room to RoomResponse.
func (r *Room) ToResponse(viewerCount int) RoomResponse {
	return RoomResponse{
		ID:           r.ID,
		Title:        r.Title,
		JoinCode:     r.JoinCode,
		ThumbnailURL: r.ThumbnailURL,
		CategoryID:   r.CategoryID,
		HostUserID:   r.HostUserID,
		IsActive:     r.IsActive,
		HashtagIDs:   r.HashtagIDs,
		ViewerCount:  viewerCount,
		CreatedAt:    r.CreatedAt,
		ClosedAt:     r.ClosedAt,
	}
}
