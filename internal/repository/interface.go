package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/babble-live/internal/domain"
)

// ErrTitleTaken is returned by RoomRepository.Create when an active room
// already uses the requested title.
var ErrTitleTaken = fmt.Errorf("%w: title already used by an active room", domain.ErrConflict)

// TagRepository persists canonical hashtags.
type TagRepository interface {
	FindByName(ctx context.Context, name string) (*domain.Tag, error)
	// CreateIfAbsent inserts name unless it exists and returns the stored row
	// either way. Concurrent callers with the same name observe the same id.
	CreateIfAbsent(ctx context.Context, name string) (*domain.Tag, error)
	NamesForRoom(ctx context.Context, roomID string) ([]string, error)
}

// CategoryRepository reads category reference data.
type CategoryRepository interface {
	FindByName(ctx context.Context, name string) (*domain.Category, error)
	NamesByIDs(ctx context.Context, ids []uint) (map[uint]string, error)
	EnsureSeeded(ctx context.Context, names []string) error
}

// UserRepository is the read side of the user directory.
type UserRepository interface {
	ResolveUserID(ctx context.Context, email string) (string, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	GetByID(ctx context.Context, userID string) (*domain.User, error)
}

// RoomRepository persists rooms together with their hashtag links.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	GetByActiveTitle(ctx context.Context, title string) (*domain.Room, error)
	GetByJoinCode(ctx context.Context, code string) (*domain.Room, error)
	ListActive(ctx context.Context) ([]domain.Room, error)
	ListAll(ctx context.Context) ([]domain.Room, error)
	ListByHost(ctx context.Context, hostUserID string) ([]domain.Room, error)
	Close(ctx context.Context, id string, closedAt time.Time) error
}

// UserHashtagRepository stores a user's interest tags.
type UserHashtagRepository interface {
	Add(ctx context.Context, userID string, tagID uint) error
	Remove(ctx context.Context, userID string, tagID uint) error
	ListNames(ctx context.Context, userID string) ([]string, error)
}

// VisitRepository stores room view history.
type VisitRepository interface {
	Record(ctx context.Context, userID, roomID string, at time.Time) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.RoomVisit, error)
}
