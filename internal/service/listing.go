package service

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/repository"
	"github.com/weiawesome/babble-live/pkg/log"
)

const listingKey = "active"

// ListingAggregator joins rooms, categories, viewer counts and hashtags into
// the room listing. It reads only; the broadcast path is never touched.
type ListingAggregator struct {
	rooms          *RoomRegistry
	categories     repository.CategoryRepository
	members        *MembershipTracker
	tags           *TagIndex
	thumbs         *ThumbnailResolver
	maxConcurrency int
	sf             singleflight.Group
}

func NewListingAggregator(rooms *RoomRegistry, categories repository.CategoryRepository, members *MembershipTracker, tags *TagIndex, thumbs *ThumbnailResolver, maxConcurrency int) *ListingAggregator {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &ListingAggregator{
		rooms:          rooms,
		categories:     categories,
		members:        members,
		tags:           tags,
		thumbs:         thumbs,
		maxConcurrency: maxConcurrency,
	}
}

// ListRooms returns one entry per active room. A failed join degrades only
// that room's entry; only failing to list the rooms themselves is an error.
func (a *ListingAggregator) ListRooms(ctx context.Context) ([]domain.RoomListing, error) {
	v, err, _ := a.sf.Do(listingKey, func() (interface{}, error) {
		return a.build(ctx)
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]domain.RoomListing)
	return append([]domain.RoomListing(nil), shared...), nil
}

func (a *ListingAggregator) build(ctx context.Context) ([]domain.RoomListing, error) {
	l := log.Ctx(ctx)

	rooms, err := a.rooms.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	categoryIDs := make([]uint, 0, len(rooms))
	for _, room := range rooms {
		categoryIDs = append(categoryIDs, room.CategoryID)
	}
	categoryNames, err := a.categories.NamesByIDs(ctx, categoryIDs)
	if err != nil {
		l.Warn().Err(err).Msg("listing: category names unavailable")
	}

	listings := make([]domain.RoomListing, len(rooms))
	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)

	for i := range rooms {
		room := rooms[i]
		entry := &listings[i]
		entry.RoomID = room.ID
		entry.Title = room.Title
		entry.JoinCode = room.JoinCode
		entry.Hashtags = []string{}

		name, ok := categoryNames[room.CategoryID]
		entry.CategoryName = name
		if !ok {
			entry.Degraded = true
		}

		g.Go(func() error {
			a.fill(ctx, &room, entry)
			return nil
		})
	}
	_ = g.Wait()

	return listings, nil
}

// fill writes only into entry, so concurrent calls never share state.
func (a *ListingAggregator) fill(ctx context.Context, room *domain.Room, entry *domain.RoomListing) {
	l := log.Ctx(ctx).With().Str(log.FieldRoomID, room.ID).Logger()

	if count, err := a.members.CountActive(ctx, room.ID); err != nil {
		l.Warn().Err(err).Msg("listing: viewer count unavailable")
		entry.Degraded = true
	} else {
		entry.ViewerCount = count
	}

	if names, err := a.tags.TagsForRoom(ctx, room.ID); err != nil {
		l.Warn().Err(err).Msg("listing: hashtags unavailable")
		entry.Degraded = true
	} else {
		entry.Hashtags = names
	}

	if url, err := a.thumbs.URL(ctx, room.ThumbnailURL); err != nil {
		l.Warn().Err(err).Msg("listing: thumbnail unresolved")
		entry.Degraded = true
	} else {
		entry.ThumbnailURL = url
	}
}
