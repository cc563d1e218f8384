package service

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/repository"
	"github.com/weiawesome/babble-live/internal/store"
	"github.com/weiawesome/babble-live/pkg/log"
)

// MembershipTracker records which users are present in which rooms and
// derives viewer counts from it. It is independent of the transport: a
// user stays a member while reconnecting.
type MembershipTracker struct {
	store  store.MembershipStore
	rooms  *RoomRegistry
	visits repository.VisitRepository
	now    func() time.Time
}

// NewMembershipTracker builds a tracker. visits may be nil.
func NewMembershipTracker(s store.MembershipStore, rooms *RoomRegistry, visits repository.VisitRepository) *MembershipTracker {
	return &MembershipTracker{
		store:  s,
		rooms:  rooms,
		visits: visits,
		now:    time.Now,
	}
}

// Enter makes the user a member of an active room. Entering twice is a
// no-op; added reports whether this call created the membership.
func (t *MembershipTracker) Enter(ctx context.Context, userID, roomID string) (bool, error) {
	room, err := t.rooms.Load(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !room.IsActive {
		return false, fmt.Errorf("%w: room %s is closed", domain.ErrNotFound, roomID)
	}

	now := t.now().UTC()
	added, err := t.store.Add(ctx, domain.Membership{UserID: userID, RoomID: roomID, EnteredAt: now})
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil
	}

	// Close marks the room inactive before clearing its members, so an add
	// that raced past the clear sees the room closed here.
	if room, err = t.rooms.Load(ctx, roomID); err != nil || !room.IsActive {
		if _, rerr := t.store.Remove(ctx, roomID, userID); rerr != nil {
			l := log.Ctx(ctx)
			l.Error().Err(rerr).Str(log.FieldRoomID, roomID).Str(log.FieldUserID, userID).Msg("failed to roll back membership")
		}
		if err != nil {
			return false, err
		}
		return false, fmt.Errorf("%w: room %s is closed", domain.ErrNotFound, roomID)
	}

	if t.visits != nil {
		if err := t.visits.Record(ctx, userID, roomID, now); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("visit not recorded")
		}
	}
	return true, nil
}

// Leave removes the membership. Leaving a room the user is not in is a no-op.
func (t *MembershipTracker) Leave(ctx context.Context, userID, roomID string) (bool, error) {
	return t.store.Remove(ctx, roomID, userID)
}

func (t *MembershipTracker) CountActive(ctx context.Context, roomID string) (int, error) {
	return t.store.Count(ctx, roomID)
}

func (t *MembershipTracker) ActiveUserIDs(ctx context.Context, roomID string) ([]string, error) {
	return t.store.Members(ctx, roomID)
}

// IsMember lets the broadcast router validate subscribers and senders.
func (t *MembershipTracker) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return t.store.IsMember(ctx, roomID, userID)
}

// Clear drops every membership of a closed room.
func (t *MembershipTracker) Clear(ctx context.Context, roomID string) ([]string, error) {
	return t.store.ClearRoom(ctx, roomID)
}
