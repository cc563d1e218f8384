package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/store"
)

// hookStore runs beforeAdd once, ahead of the next Add.
type hookStore struct {
	store.MembershipStore

	mu        sync.Mutex
	beforeAdd func()
}

func (s *hookStore) Add(ctx context.Context, m domain.Membership) (bool, error) {
	s.mu.Lock()
	hook := s.beforeAdd
	s.beforeAdd = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.MembershipStore.Add(ctx, m)
}

func TestMembershipTracker_EnterIsIdempotent(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()
	room := h.createRoom(t, "r", "")

	for i := 0; i < 3; i++ {
		_, err := h.members.Enter(ctx, "u", room.ID)
		require.NoError(t, err)
	}

	n, err := h.members.CountActive(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var visits int64
	require.NoError(t, h.db.Model(&domain.RoomVisitModel{}).Where("user_id = ?", "u").Count(&visits).Error)
	assert.Equal(t, int64(1), visits)
}

func TestMembershipTracker_EnterLeaveEnter(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()
	room := h.createRoom(t, "r", "")

	_, err := h.members.Enter(ctx, "u", room.ID)
	require.NoError(t, err)
	_, err = h.members.Leave(ctx, "u", room.ID)
	require.NoError(t, err)
	_, err = h.members.Enter(ctx, "u", room.ID)
	require.NoError(t, err)

	ids, err := h.members.ActiveUserIDs(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u"}, ids)

	removed, err := h.members.Leave(ctx, "v", room.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMembershipTracker_EnterMissingOrClosedRoom(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()

	_, err := h.members.Enter(ctx, "u", "no-such-room")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	room := h.createRoom(t, "r", "")
	_, err = h.registry.Close(ctx, room.ID, "host")
	require.NoError(t, err)

	_, err = h.members.Enter(ctx, "u", room.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMembershipTracker_CountMatchesDistinctUsers(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	ctx := context.Background()
	room := h.createRoom(t, "r", "")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.members.Enter(ctx, fmt.Sprintf("user-%d", i%8), room.ID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := h.members.CountActive(ctx, room.ID)
	require.NoError(t, err)
	ids, err := h.members.ActiveUserIDs(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Len(t, ids, n)
}

func TestMembershipTracker_EnterRacingCloseRollsBack(t *testing.T) {
	hooks := &hookStore{}
	h := newHarness(t, harnessOpts{store: func(s store.MembershipStore) store.MembershipStore {
		hooks.MembershipStore = s
		return hooks
	}})
	ctx := context.Background()
	room := h.createRoom(t, "r", "")

	// The room is loaded as active, then closed before the membership write.
	hooks.mu.Lock()
	hooks.beforeAdd = func() {
		require.NoError(t, h.svc.CloseRoom(ctx, "host", room.ID))
	}
	hooks.mu.Unlock()

	_, err := h.svc.EnterRoom(ctx, "v", &domain.EnterRoomRequest{JoinCode: room.JoinCode})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := h.members.CountActive(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	ok, err := h.members.IsMember(ctx, room.ID, "v")
	require.NoError(t, err)
	assert.False(t, ok)

	var visits int64
	require.NoError(t, h.db.Model(&domain.RoomVisitModel{}).Where("user_id = ?", "v").Count(&visits).Error)
	assert.Zero(t, visits)
	assert.Zero(t, h.hub.ChannelCount())
}
