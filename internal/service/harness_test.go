package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/babble-live/internal/cache"
	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/hub"
	"github.com/weiawesome/babble-live/internal/repository"
	"github.com/weiawesome/babble-live/internal/store"
	"github.com/weiawesome/babble-live/internal/testutil"
	"github.com/weiawesome/babble-live/pkg/storage"
)

type harness struct {
	db       *gorm.DB
	mr       *miniredis.Miniredis
	tags     *TagIndex
	registry *RoomRegistry
	members  *MembershipTracker
	listing  *ListingAggregator
	hub      *hub.Hub
	svc      LiveRoomService
}

type harnessOpts struct {
	grace   time.Duration
	storage storage.Storage
	tagRepo func(repository.TagRepository) repository.TagRepository
	store   func(store.MembershipStore) store.MembershipStore
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	mr, client := testutil.NewRedis(t)

	var tagRepo repository.TagRepository = repository.NewGormTagRepository(db)
	if opts.tagRepo != nil {
		tagRepo = opts.tagRepo(tagRepo)
	}
	categories := repository.NewGormCategoryRepository(db)
	users := repository.NewGormUserRepository(db)
	visits := repository.NewGormVisitRepository(db)
	thumbs := NewThumbnailResolver(opts.storage, time.Hour)

	tags := NewTagIndex(tagRepo)
	registry := NewRoomRegistry(RegistryDeps{
		Rooms:      repository.NewGormRoomRepository(db),
		Categories: categories,
		Users:      users,
		Tags:       tags,
		Cache:      cache.NewRedisRoomCache(client, "room", time.Minute),
		Locker:     cache.NewRedisLocker(client, "room", 5*time.Second, time.Second),
		Thumbnails: thumbs,
	}, RegistryConfig{MaxHashtags: 5})
	membershipStore := store.NewRedisStore(client)
	if opts.store != nil {
		membershipStore = opts.store(membershipStore)
	}
	members := NewMembershipTracker(membershipStore, registry, visits)
	listing := NewListingAggregator(registry, categories, members, tags, thumbs, 4)
	h := hub.New(members)

	svc := NewLiveRoomService(Deps{
		Registry:     registry,
		Members:      members,
		Listing:      listing,
		Tags:         tags,
		Hub:          h,
		Users:        users,
		UserHashtags: repository.NewGormUserHashtagRepository(db),
		Visits:       visits,
	}, opts.grace)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	require.NoError(t, categories.EnsureSeeded(context.Background(), []string{"movies", "music"}))
	testutil.SeedUser(t, db, "host", "host@example.com", "host")
	testutil.SeedUser(t, db, "u", "u@example.com", "U")
	testutil.SeedUser(t, db, "v", "v@example.com", "V")

	return &harness{db: db, mr: mr, tags: tags, registry: registry, members: members, listing: listing, hub: h, svc: svc}
}

func (h *harness) createRoom(t *testing.T, title, hashtags string) *domain.RoomResponse {
	t.Helper()
	resp, err := h.svc.CreateRoom(context.Background(), &domain.CreateRoomRequest{
		Title:        title,
		CategoryName: "movies",
		HostEmail:    "host@example.com",
		Hashtags:     hashtags,
	})
	require.NoError(t, err)
	return resp
}

// conn is an in-memory live connection.
type conn struct {
	id, user string
	mu       sync.Mutex
	frames   []map[string]interface{}
	closed   bool
}

func newConn(id, user string) *conn { return &conn{id: id, user: user} }

func (c *conn) ID() string     { return c.id }
func (c *conn) UserID() string { return c.user }

func (c *conn) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(frame, &m); err != nil {
		return false
	}
	c.frames = append(c.frames, m)
	return true
}

func (c *conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// ofType returns the received frames whose type matches.
func (c *conn) ofType(typ string) []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]interface{}
	for _, f := range c.frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}
