package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/testutil"
)

func TestRedisRoomCache(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	c := NewRedisRoomCache(client, "room", time.Minute)
	ctx := context.Background()

	key := c.KeyByTitle("movie-night")
	assert.Equal(t, "room:title:movie-night", key)

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	room := &domain.Room{ID: "r1", Title: "movie-night", IsActive: true, HashtagIDs: []uint{1, 2}}
	require.NoError(t, c.Set(ctx, key, room))
	assert.Equal(t, time.Minute, mr.TTL(key))

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.Equal(t, []uint{1, 2}, got.HashtagIDs)

	require.NoError(t, c.Delete(ctx, key, c.KeyByID("r1")))
	require.NoError(t, c.Delete(ctx))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, mr.Set(key, "{not json"))
	_, err = c.Get(ctx, key)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := testutil.NewRedis(t)
	locker := NewRedisLocker(client, "room", 5*time.Second, 5*time.Second)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "movie-night")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestRedisLocker_Timeout(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	locker := NewRedisLocker(client, "room", time.Minute, 50*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "x")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "x")
	assert.ErrorIs(t, err, ErrLockTimeout)

	// a stale release must not drop someone else's lock
	require.NoError(t, mr.Set("room:lock:x", "someone-else"))
	release()
	assert.True(t, mr.Exists("room:lock:x"))
}
