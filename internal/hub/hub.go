// Package hub is the per-room broadcast router. Each room with at least one
// attached connection owns a channel with its own lock; publishing to one
// room never waits on another.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/pkg/log"
)

var ErrHubClosed = errors.New("hub is shut down")

// Subscriber is one live connection as seen by the router.
type Subscriber interface {
	ID() string
	UserID() string
	// Deliver enqueues a frame without blocking. false means the connection
	// is unreachable and must be detached.
	Deliver(frame []byte) bool
	Close()
}

// MembershipChecker answers whether a user currently holds a membership.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
}

// Forwarder carries locally published frames to other instances.
type Forwarder interface {
	Forward(ctx context.Context, roomID string, frame []byte) error
	ForwardClose(ctx context.Context, roomID string, frame []byte) error
}

// channel is the Active state of a room. dead is set once it has been
// removed from the hub map; a subscriber that raced with removal retries.
type channel struct {
	roomID string
	mu     sync.Mutex
	subs   map[string]Subscriber
	order  []string
	dead   bool
}

func (ch *channel) detach(connID string) bool {
	if _, ok := ch.subs[connID]; !ok {
		return false
	}
	delete(ch.subs, connID)
	for i, id := range ch.order {
		if id == connID {
			ch.order = append(ch.order[:i], ch.order[i+1:]...)
			break
		}
	}
	return true
}

// Hub owns the room -> channel registry.
//
// Lock order: channel.mu, then Hub.mu or Hub.connMu. Never acquire a
// channel lock while holding either hub lock.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*channel
	closed   bool

	connMu    sync.Mutex
	connRooms map[string]map[string]struct{} // connID -> roomIDs

	members   MembershipChecker
	forwarder Forwarder
}

func New(members MembershipChecker) *Hub {
	return &Hub{
		channels:  make(map[string]*channel),
		connRooms: make(map[string]map[string]struct{}),
		members:   members,
	}
}

// SetForwarder attaches the cross-instance relay. Call before serving traffic.
func (h *Hub) SetForwarder(f Forwarder) {
	h.forwarder = f
}

func (h *Hub) getOrCreate(roomID string) (*channel, error) {
	h.mu.RLock()
	ch, ok := h.channels[roomID]
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil, ErrHubClosed
	}
	if ok {
		return ch, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	if ch, ok = h.channels[roomID]; !ok {
		ch = &channel{roomID: roomID, subs: make(map[string]Subscriber)}
		h.channels[roomID] = ch
	}
	return ch, nil
}

func (h *Hub) lookup(roomID string) *channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channels[roomID]
}

// releaseIfEmpty must be called with ch.mu held.
func (h *Hub) releaseIfEmpty(ch *channel) {
	if len(ch.subs) > 0 || ch.dead {
		return
	}
	ch.dead = true
	h.mu.Lock()
	if h.channels[ch.roomID] == ch {
		delete(h.channels, ch.roomID)
	}
	h.mu.Unlock()
	l := log.L()
	l.Debug().Str(log.FieldRoomID, ch.roomID).Msg("channel released")
}

func (h *Hub) trackConn(connID, roomID string) {
	h.connMu.Lock()
	rooms, ok := h.connRooms[connID]
	if !ok {
		rooms = make(map[string]struct{})
		h.connRooms[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	h.connMu.Unlock()
}

func (h *Hub) untrackConn(connID, roomID string) {
	h.connMu.Lock()
	if rooms, ok := h.connRooms[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.connRooms, connID)
		}
	}
	h.connMu.Unlock()
}

// Subscribe attaches sub to the room's channel, creating the channel when
// the room has none. The user must hold an active membership.
//
// The membership is checked under the channel lock. A leave removes the
// membership before UnsubscribeUser takes the same lock, so it either makes
// this check fail or detaches the connection attached here.
func (h *Hub) Subscribe(ctx context.Context, sub Subscriber, roomID string) error {
	for {
		ch, err := h.getOrCreate(roomID)
		if err != nil {
			return err
		}

		ch.mu.Lock()
		if ch.dead {
			ch.mu.Unlock()
			continue
		}
		ok, err := h.members.IsMember(ctx, roomID, sub.UserID())
		if err != nil || !ok {
			h.releaseIfEmpty(ch)
			ch.mu.Unlock()
			if err != nil {
				return fmt.Errorf("membership check: %w", err)
			}
			return fmt.Errorf("%w: user %s is not in room %s", domain.ErrUnauthorized, sub.UserID(), roomID)
		}
		if _, exists := ch.subs[sub.ID()]; !exists {
			ch.subs[sub.ID()] = sub
			ch.order = append(ch.order, sub.ID())
		}
		h.trackConn(sub.ID(), roomID)
		ch.mu.Unlock()

		l := log.Ctx(ctx)
		l.Debug().
			Str(log.FieldRoomID, roomID).
			Str(log.FieldConnID, sub.ID()).
			Msg("subscribed")
		return nil
	}
}

// Unsubscribe detaches a connection from one room. It reports whether the
// connection was attached.
func (h *Hub) Unsubscribe(connID, roomID string) bool {
	ch := h.lookup(roomID)
	if ch == nil {
		return false
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.detach(connID) {
		return false
	}
	h.untrackConn(connID, roomID)
	h.releaseIfEmpty(ch)
	return true
}

// UnsubscribeAll detaches a connection from every room and returns those rooms.
// Used on transport disconnect.
func (h *Hub) UnsubscribeAll(connID string) []string {
	h.connMu.Lock()
	rooms := make([]string, 0, len(h.connRooms[connID]))
	for roomID := range h.connRooms[connID] {
		rooms = append(rooms, roomID)
	}
	h.connMu.Unlock()

	detached := rooms[:0]
	for _, roomID := range rooms {
		if h.Unsubscribe(connID, roomID) {
			detached = append(detached, roomID)
		}
	}
	return detached
}

// UnsubscribeUser detaches every connection the user has attached to the room.
func (h *Hub) UnsubscribeUser(userID, roomID string) []Subscriber {
	ch := h.lookup(roomID)
	if ch == nil {
		return nil
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	var removed []Subscriber
	for _, id := range append([]string(nil), ch.order...) {
		sub := ch.subs[id]
		if sub.UserID() != userID {
			continue
		}
		ch.detach(id)
		h.untrackConn(id, roomID)
		removed = append(removed, sub)
	}
	h.releaseIfEmpty(ch)
	return removed
}

// HasUserConnection reports whether any connection of the user is attached
// to the room on this instance.
func (h *Hub) HasUserConnection(userID, roomID string) bool {
	ch := h.lookup(roomID)
	if ch == nil {
		return false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, sub := range ch.subs {
		if sub.UserID() == userID {
			return true
		}
	}
	return false
}

// Publish validates a room event, checks the sender's membership and fans
// the event out to every attached connection in publish order. Publishing
// to a room without a channel drops the event.
func (h *Hub) Publish(ctx context.Context, event domain.RoomEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ok, err := h.members.IsMember(ctx, event.RoomID, event.SenderID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: user %s is not in room %s", domain.ErrUnauthorized, event.SenderID, event.RoomID)
	}

	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	n := h.deliver(event.RoomID, frame)
	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldRoomID, event.RoomID).
		Str(log.FieldEventID, event.ID).
		Str(log.FieldEventType, string(event.Type)).
		Int("recipients", n).
		Msg("event published")

	h.forward(ctx, event.RoomID, frame)
	return nil
}

// Broadcast sends a system frame (viewer count and the like) to a room. It
// skips membership validation.
func (h *Hub) Broadcast(ctx context.Context, roomID string, v interface{}) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	h.deliver(roomID, frame)
	h.forward(ctx, roomID, frame)
	return nil
}

// DeliverRemote fans out a frame that was published on another instance.
func (h *Hub) DeliverRemote(roomID string, frame []byte) {
	h.deliver(roomID, frame)
}

func (h *Hub) forward(ctx context.Context, roomID string, frame []byte) {
	if h.forwarder == nil {
		return
	}
	if err := h.forwarder.Forward(ctx, roomID, frame); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to forward frame")
	}
}

// deliver runs under the channel lock, which makes it the single sequencing
// point for the room. Unreachable connections are detached and closed after
// the lock is released; the rest still receive the frame.
func (h *Hub) deliver(roomID string, frame []byte) int {
	ch := h.lookup(roomID)
	if ch == nil {
		return 0
	}

	var failed []Subscriber
	delivered := 0

	ch.mu.Lock()
	for _, id := range ch.order {
		sub := ch.subs[id]
		if sub.Deliver(frame) {
			delivered++
			continue
		}
		failed = append(failed, sub)
	}
	for _, sub := range failed {
		ch.detach(sub.ID())
		h.untrackConn(sub.ID(), roomID)
	}
	if len(failed) > 0 {
		h.releaseIfEmpty(ch)
	}
	ch.mu.Unlock()

	for _, sub := range failed {
		l := log.L()
		l.Warn().
			Str(log.FieldRoomID, roomID).
			Str(log.FieldConnID, sub.ID()).
			Str(log.FieldUserID, sub.UserID()).
			Msg("delivery failed, dropping connection")
		sub.Close()
	}
	return delivered
}

// CloseRoom sends a final frame to every subscriber of the room and tears
// the channel down. Connections stay open for their other rooms.
func (h *Hub) CloseRoom(ctx context.Context, roomID string, final interface{}) error {
	frame, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	h.closeLocal(roomID, frame)

	if h.forwarder != nil {
		if err := h.forwarder.ForwardClose(ctx, roomID, frame); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to forward room close")
		}
	}
	return nil
}

// CloseRemote tears down a room closed on another instance.
func (h *Hub) CloseRemote(roomID string, frame []byte) {
	h.closeLocal(roomID, frame)
}

func (h *Hub) closeLocal(roomID string, frame []byte) {
	ch := h.lookup(roomID)
	if ch == nil {
		return
	}

	ch.mu.Lock()
	for _, id := range ch.order {
		ch.subs[id].Deliver(frame)
		h.untrackConn(id, roomID)
	}
	ch.subs = make(map[string]Subscriber)
	ch.order = nil
	h.releaseIfEmpty(ch)
	ch.mu.Unlock()
}

// SubscriberCount returns how many connections are attached to the room here.
func (h *Hub) SubscriberCount(roomID string) int {
	ch := h.lookup(roomID)
	if ch == nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// ChannelCount returns the number of rooms in the Active state.
func (h *Hub) ChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Attachment names a user whose connection was attached to a room.
type Attachment struct {
	RoomID string
	UserID string
}

// Shutdown drains every channel, closes every attached connection and
// returns the distinct (room, user) pairs it detached. Subsequent
// subscribes fail with ErrHubClosed.
func (h *Hub) Shutdown(ctx context.Context) ([]Attachment, error) {
	h.mu.Lock()
	h.closed = true
	channels := make([]*channel, 0, len(h.channels))
	for _, ch := range h.channels {
		channels = append(channels, ch)
	}
	h.mu.Unlock()

	conns := make(map[string]Subscriber)
	seen := make(map[Attachment]struct{})
	var drained []Attachment
	var err error
	for _, ch := range channels {
		ch.mu.Lock()
		for _, id := range ch.order {
			sub := ch.subs[id]
			conns[id] = sub
			h.untrackConn(id, ch.roomID)
			a := Attachment{RoomID: ch.roomID, UserID: sub.UserID()}
			if _, dup := seen[a]; !dup && a.UserID != "" {
				seen[a] = struct{}{}
				drained = append(drained, a)
			}
		}
		ch.subs = make(map[string]Subscriber)
		ch.order = nil
		h.releaseIfEmpty(ch)
		ch.mu.Unlock()

		if err = ctx.Err(); err != nil {
			break
		}
	}

	for _, sub := range conns {
		sub.Close()
	}
	l := log.L()
	l.Info().Int("channels", len(channels)).Int("connections", len(conns)).Msg("hub drained")
	return drained, err
}
