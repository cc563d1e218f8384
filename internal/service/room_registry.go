package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/babble-live/internal/cache"
	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/idgen"
	"github.com/weiawesome/babble-live/internal/repository"
	"github.com/weiawesome/babble-live/pkg/log"
)

// RegistryConfig bounds room creation input.
type RegistryConfig struct {
	MaxTitleLength int
	MaxHashtags    int
	CreateAttempts int
}

// RoomRegistry owns room records: creation, lookup and close.
type RoomRegistry struct {
	rooms      repository.RoomRepository
	categories repository.CategoryRepository
	users      repository.UserRepository
	tags       *TagIndex
	cache      cache.RoomCache
	locker     cache.Locker
	thumbs     *ThumbnailResolver
	ids        idgen.Generator
	codes      idgen.Generator
	cfg        RegistryConfig
	sf         singleflight.Group
}

// RegistryDeps groups the collaborators of a RoomRegistry. Cache, Locker and
// Thumbnails are optional.
type RegistryDeps struct {
	Rooms      repository.RoomRepository
	Categories repository.CategoryRepository
	Users      repository.UserRepository
	Tags       *TagIndex
	Cache      cache.RoomCache
	Locker     cache.Locker
	Thumbnails *ThumbnailResolver
}

func NewRoomRegistry(deps RegistryDeps, cfg RegistryConfig) *RoomRegistry {
	if cfg.MaxTitleLength <= 0 {
		cfg.MaxTitleLength = 200
	}
	if cfg.MaxHashtags <= 0 {
		cfg.MaxHashtags = 10
	}
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = 3
	}
	return &RoomRegistry{
		rooms:      deps.Rooms,
		categories: deps.Categories,
		users:      deps.Users,
		tags:       deps.Tags,
		cache:      deps.Cache,
		locker:     deps.Locker,
		thumbs:     deps.Thumbnails,
		ids:        idgen.NewUUID(),
		codes:      idgen.NewJoinCode(),
		cfg:        cfg,
	}
}

// CreateRoom validates the request, resolves every hashtag and writes the
// room with all of its hashtag links atomically.
func (r *RoomRegistry) CreateRoom(ctx context.Context, req *domain.CreateRoomRequest) (*domain.Room, error) {
	l := log.Ctx(ctx)

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > r.cfg.MaxTitleLength {
		return nil, fmt.Errorf("%w: title longer than %d characters", domain.ErrInvalidInput, r.cfg.MaxTitleLength)
	}

	category, err := r.categories.FindByName(ctx, strings.TrimSpace(req.CategoryName))
	if err != nil {
		return nil, err
	}
	hostID, err := r.users.ResolveUserID(ctx, req.HostEmail)
	if err != nil {
		return nil, err
	}

	tokens := ParseHashtags(req.Hashtags)
	if len(tokens) > r.cfg.MaxHashtags {
		return nil, fmt.Errorf("%w: at most %d hashtags per room", domain.ErrInvalidInput, r.cfg.MaxHashtags)
	}
	if err := r.thumbs.Check(ctx, req.ThumbnailURL); err != nil {
		return nil, err
	}

	tagIDs, err := r.tags.ResolveAll(ctx, tokens)
	if err != nil {
		return nil, err
	}

	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, "title:"+title)
		if err != nil {
			if errors.Is(err, cache.ErrLockTimeout) {
				return nil, fmt.Errorf("%w: room %q is being created", domain.ErrConflict, title)
			}
			return nil, err
		}
		defer release()
	}

	var room *domain.Room
	for attempt := 1; ; attempt++ {
		room, err = r.newRoom(title, req.ThumbnailURL, category.ID, hostID, tagIDs)
		if err != nil {
			return nil, err
		}

		err = r.rooms.Create(ctx, room)
		if err == nil {
			break
		}
		// Anything but an id or join code collision is final.
		if errors.Is(err, repository.ErrTitleTaken) || !errors.Is(err, domain.ErrConflict) || attempt >= r.cfg.CreateAttempts {
			return nil, err
		}
		l.Warn().Err(err).Int("attempt", attempt).Msg("room key collision, retrying")
	}

	l.Info().
		Str(log.FieldRoomID, room.ID).
		Str(log.FieldUserID, hostID).
		Int("hashtags", len(tagIDs)).
		Msg("room created")
	return room, nil
}

func (r *RoomRegistry) newRoom(title, thumbnail string, categoryID uint, hostID string, tagIDs []uint) (*domain.Room, error) {
	id, err := r.ids.Generate()
	if err != nil {
		return nil, err
	}
	code, err := r.codes.Generate()
	if err != nil {
		return nil, err
	}
	return &domain.Room{
		ID:           id,
		Title:        title,
		JoinCode:     code,
		ThumbnailURL: thumbnail,
		CategoryID:   categoryID,
		HostUserID:   hostID,
		IsActive:     true,
		HashtagIDs:   tagIDs,
	}, nil
}

// FindByTitle returns the active room with this exact title.
func (r *RoomRegistry) FindByTitle(ctx context.Context, title string) (*domain.Room, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	return r.cached(ctx, func(c cache.RoomCache) string { return c.KeyByTitle(title) }, func() (*domain.Room, error) {
		return r.rooms.GetByActiveTitle(ctx, title)
	})
}

// FindByJoinCode returns the room with this join code, active or not.
func (r *RoomRegistry) FindByJoinCode(ctx context.Context, code string) (*domain.Room, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: join code is required", domain.ErrInvalidInput)
	}
	return r.cached(ctx, func(c cache.RoomCache) string { return c.KeyByJoinCode(code) }, func() (*domain.Room, error) {
		return r.rooms.GetByJoinCode(ctx, code)
	})
}

// FindByID returns the room with this id, active or not.
func (r *RoomRegistry) FindByID(ctx context.Context, id string) (*domain.Room, error) {
	return r.cached(ctx, func(c cache.RoomCache) string { return c.KeyByID(id) }, func() (*domain.Room, error) {
		return r.rooms.GetByID(ctx, id)
	})
}

// Load reads the room straight from the database. Used where a stale cache
// entry would be wrong, such as the active check on enter.
func (r *RoomRegistry) Load(ctx context.Context, id string) (*domain.Room, error) {
	return r.rooms.GetByID(ctx, id)
}

// cached reads through the room cache. Only active rooms are cached.
func (r *RoomRegistry) cached(ctx context.Context, keyOf func(cache.RoomCache) string, load func() (*domain.Room, error)) (*domain.Room, error) {
	if r.cache == nil {
		return load()
	}
	key := keyOf(r.cache)

	v, err, _ := r.sf.Do(key, func() (interface{}, error) {
		room, err := r.cache.Get(ctx, key)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str("key", key).Msg("cache get error")
		}

		room, err = load()
		if err != nil {
			return nil, err
		}
		if room.IsActive {
			r.asyncCacheSet(key, room)
		}
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	room := *v.(*domain.Room)
	return &room, nil
}

func (r *RoomRegistry) asyncCacheSet(key string, room *domain.Room) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := r.cache.Set(ctx, key, room); err != nil {
			l := log.L()
			l.Warn().Err(err).Str("key", key).Msg("cache set error")
		}
	}()
}

func (r *RoomRegistry) evict(ctx context.Context, room *domain.Room) {
	if r.cache == nil {
		return
	}
	keys := []string{
		r.cache.KeyByTitle(room.Title),
		r.cache.KeyByJoinCode(room.JoinCode),
		r.cache.KeyByID(room.ID),
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, room.ID).Msg("cache evict error")
	}
}

// ListAll returns every room, closed ones included.
func (r *RoomRegistry) ListAll(ctx context.Context) ([]domain.Room, error) {
	return r.rooms.ListAll(ctx)
}

// ListActive returns the rooms users can currently enter.
func (r *RoomRegistry) ListActive(ctx context.Context) ([]domain.Room, error) {
	return r.rooms.ListActive(ctx)
}

func (r *RoomRegistry) HostedBy(ctx context.Context, hostUserID string) ([]domain.Room, error) {
	return r.rooms.ListByHost(ctx, hostUserID)
}

// Close deactivates a room on behalf of its host.
func (r *RoomRegistry) Close(ctx context.Context, roomID, requesterID string) (*domain.Room, error) {
	room, err := r.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, fmt.Errorf("%w: room %s is already closed", domain.ErrNotFound, roomID)
	}
	if room.HostUserID != requesterID {
		return nil, fmt.Errorf("%w: only the host can close room %s", domain.ErrForbidden, roomID)
	}

	now := time.Now().UTC()
	if err := r.rooms.Close(ctx, roomID, now); err != nil {
		return nil, err
	}
	r.evict(ctx, room)

	room.IsActive = false
	room.ClosedAt = &now
	return room, nil
}
