package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/babble-live/internal/domain"
)

type RedisRoomCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRoomCache wraps a shared client; the caller owns its lifecycle.
func NewRedisRoomCache(client *redis.Client, prefix string, ttl time.Duration) *RedisRoomCache {
	return &RedisRoomCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisRoomCache) KeyByTitle(title string) string {
	return fmt.Sprintf("%s:title:%s", c.prefix, title)
}

func (c *RedisRoomCache) KeyByJoinCode(code string) string {
	return fmt.Sprintf("%s:code:%s", c.prefix, code)
}

func (c *RedisRoomCache) KeyByID(roomID string) string {
	return fmt.Sprintf("%s:id:%s", c.prefix, roomID)
}

func (c *RedisRoomCache) Get(ctx context.Context, key string) (*domain.Room, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &room, nil
}

func (c *RedisRoomCache) Set(ctx context.Context, key string, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisRoomCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}
