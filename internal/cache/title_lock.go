package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/babble-live/pkg/log"
)

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX lease lock. The lease bounds how long a crashed
// holder can block others.
type RedisLocker struct {
	client    *redis.Client
	prefix    string
	lease     time.Duration
	wait      time.Duration
	retryStep time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, lease, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:    client,
		prefix:    prefix,
		lease:     lease,
		wait:      wait,
		retryStep: 20 * time.Millisecond,
	}
}

func (l *RedisLocker) key(name string) string {
	return fmt.Sprintf("%s:lock:%s", l.prefix, name)
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(), error) {
	key := l.key(name)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryStep):
		}
	}

	release := func() {
		// Released on a fresh context so a cancelled request still unlocks.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			logger := log.L()
			logger.Warn().Err(err).Str("lock", key).Msg("failed to release lock")
		}
	}
	return release, nil
}
