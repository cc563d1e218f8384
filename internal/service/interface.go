package service

import (
	"context"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/hub"
)

// LiveRoomService is the live-room core as consumed by the REST and
// websocket handlers.
type LiveRoomService interface {
	CreateRoom(ctx context.Context, req *domain.CreateRoomRequest) (*domain.RoomResponse, error)
	EnterRoom(ctx context.Context, userID string, req *domain.EnterRoomRequest) (*domain.RoomResponse, error)
	LeaveRoom(ctx context.Context, userID, roomID string) error
	CloseRoom(ctx context.Context, userID, roomID string) error
	ListRooms(ctx context.Context) ([]domain.RoomListing, error)
	LookupRoom(ctx context.Context, req *domain.LookupRoomRequest) (*domain.RoomResponse, error)
	ViewerCount(ctx context.Context, roomID string) (int, error)

	PublishChatMessage(ctx context.Context, userID, roomID, body string) (*domain.RoomEvent, error)
	PublishEmoji(ctx context.Context, userID, roomID, emojiType string) (*domain.RoomEvent, error)

	// Subscribe attaches a live connection to a room the user has entered
	// and returns the current viewer count.
	Subscribe(ctx context.Context, sub hub.Subscriber, roomID string) (int, error)
	Unsubscribe(ctx context.Context, sub hub.Subscriber, roomID string) error
	// Disconnect detaches a closed connection from every room.
	Disconnect(ctx context.Context, sub hub.Subscriber)

	HostedRooms(ctx context.Context, email string) ([]domain.RoomResponse, error)
	ViewHistory(ctx context.Context, email string) ([]domain.RoomVisit, error)
	AddUserHashtag(ctx context.Context, email, name string) error
	RemoveUserHashtag(ctx context.Context, email, name string) error
	ListUserHashtags(ctx context.Context, email string) ([]string, error)

	// Shutdown drains every channel and removes the memberships held by
	// this instance's connections and pending grace timers.
	Shutdown(ctx context.Context) error
}
