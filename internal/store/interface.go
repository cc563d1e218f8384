package store

import (
	"context"

	"github.com/weiawesome/babble-live/internal/domain"
)

// MembershipStore holds the live (user, room) memberships. Add and Remove are
// atomic per pair, which is what keeps viewer counts exact under concurrent
// enter and leave calls.
type MembershipStore interface {
	// Add records the membership unless the pair exists. added is false for
	// a repeated enter, and the first EnteredAt is kept.
	Add(ctx context.Context, m domain.Membership) (added bool, err error)

	// Remove deletes the membership. removed is false when there was none.
	Remove(ctx context.Context, roomID, userID string) (removed bool, err error)

	Count(ctx context.Context, roomID string) (int, error)
	Members(ctx context.Context, roomID string) ([]string, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)

	// ClearRoom drops every membership of a room and returns the users removed.
	ClearRoom(ctx context.Context, roomID string) ([]string, error)
}
