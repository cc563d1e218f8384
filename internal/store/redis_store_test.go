package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/testutil"
)

func newStore(t *testing.T) (*miniredis.Miniredis, MembershipStore) {
	mr, client := testutil.NewRedis(t)
	return mr, NewRedisStore(client)
}

func member(roomID, userID string, at time.Time) domain.Membership {
	return domain.Membership{RoomID: roomID, UserID: userID, EnteredAt: at}
}

func TestRedisStore_AddIsIdempotent(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()
	now := time.Now()

	added, err := s.Add(ctx, member("r1", "u1", now))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(ctx, member("r1", "u1", now.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, added)

	n, err := s.Count(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, strconv.FormatInt(now.UnixMilli(), 10), mr.HGet(roomMembersKey("r1"), "u1"), "first enter wins")
}

func TestRedisStore_EnterLeaveEnter(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, member("r1", "u1", time.Now()))
	require.NoError(t, err)
	removed, err := s.Remove(ctx, "r1", "u1")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = s.Add(ctx, member("r1", "u1", time.Now()))
	require.NoError(t, err)

	members, err := s.Members(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, members)

	removed, err = s.Remove(ctx, "r2", "u1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisStore_ConcurrentEnters(t *testing.T) {
	_, s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	firstAdds := 0
	for u := 0; u < 10; u++ {
		for rep := 0; rep < 5; rep++ {
			wg.Add(1)
			go func(u int) {
				defer wg.Done()
				added, err := s.Add(ctx, member("r1", fmt.Sprintf("u%d", u), time.Now()))
				if assert.NoError(t, err) && added {
					mu.Lock()
					firstAdds++
					mu.Unlock()
				}
			}(u)
		}
	}
	wg.Wait()

	n, err := s.Count(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 10, firstAdds)
}

func TestRedisStore_ClearRoom(t *testing.T) {
	mr, s := newStore(t)
	ctx := context.Background()

	for _, pair := range [][2]string{{"a", "u1"}, {"b", "u1"}, {"a", "u2"}} {
		_, err := s.Add(ctx, member(pair[0], pair[1], time.Now()))
		require.NoError(t, err)
	}

	ok, err := s.IsMember(ctx, "a", "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	cleared, err := s.ClearRoom(ctx, "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, cleared)
	assert.False(t, mr.Exists(roomMembersKey("a")))

	n, err := s.Count(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	ok, err = s.IsMember(ctx, "b", "u1")
	require.NoError(t, err)
	assert.True(t, ok, "other rooms are untouched")

	cleared, err = s.ClearRoom(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, cleared)
}
