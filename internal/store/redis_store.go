package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/babble-live/internal/domain"
)

// Redis key pattern:
// presence:room:{room_id}:members   HASH<user_id, entered_at_ms>  - active memberships

func roomMembersKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s:members", roomID)
}

// redisStore implements MembershipStore using Redis.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a shared client; the caller owns its lifecycle.
func NewRedisStore(client *redis.Client) MembershipStore {
	return &redisStore{client: client}
}

func (s *redisStore) Add(ctx context.Context, m domain.Membership) (bool, error) {
	added, err := s.client.HSetNX(ctx, roomMembersKey(m.RoomID), m.UserID, m.EnteredAt.UnixMilli()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add membership: %w", err)
	}
	return added, nil
}

func (s *redisStore) Remove(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := s.client.HDel(ctx, roomMembersKey(roomID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove membership: %w", err)
	}
	return n > 0, nil
}

func (s *redisStore) Count(ctx context.Context, roomID string) (int, error) {
	n, err := s.client.HLen(ctx, roomMembersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return int(n), nil
}

func (s *redisStore) Members(ctx context.Context, roomID string) ([]string, error) {
	users, err := s.client.HKeys(ctx, roomMembersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return users, nil
}

func (s *redisStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	ok, err := s.client.HExists(ctx, roomMembersKey(roomID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

// ClearRoom reads and deletes the member hash in one MULTI, so an Add that
// lands afterwards is never reported as cleared.
func (s *redisStore) ClearRoom(ctx context.Context, roomID string) ([]string, error) {
	key := roomMembersKey(roomID)
	pipe := s.client.TxPipeline()
	users := pipe.HKeys(ctx, key)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear room: %w", err)
	}
	return users.Val(), nil
}
