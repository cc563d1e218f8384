package cache

import (
	"context"
	"errors"

	"github.com/weiawesome/babble-live/internal/domain"
)

var (
	ErrCacheMiss   = errors.New("cache miss")
	ErrLockTimeout = errors.New("lock not acquired before timeout")
)

// RoomCache stores room records under lookup keys built by the Key* helpers.
type RoomCache interface {
	Get(ctx context.Context, key string) (*domain.Room, error)
	Set(ctx context.Context, key string, room *domain.Room) error
	Delete(ctx context.Context, keys ...string) error
	KeyByTitle(title string) string
	KeyByJoinCode(code string) string
	KeyByID(roomID string) string
}

// Locker serialises check-then-create on a name across instances.
type Locker interface {
	// Acquire blocks until the lock is held, ctx is done or the wait times out.
	// The returned func releases the lock if it is still owned.
	Acquire(ctx context.Context, name string) (release func(), err error)
}
