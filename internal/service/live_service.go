package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/weiawesome/babble-live/internal/audit"
	"github.com/weiawesome/babble-live/internal/domain"
	"github.com/weiawesome/babble-live/internal/hub"
	"github.com/weiawesome/babble-live/internal/idgen"
	"github.com/weiawesome/babble-live/internal/repository"
	"github.com/weiawesome/babble-live/pkg/log"
)

// Deps wires the core components into a LiveRoomService.
type Deps struct {
	Registry     *RoomRegistry
	Members      *MembershipTracker
	Listing      *ListingAggregator
	Tags         *TagIndex
	Hub          *hub.Hub
	Users        repository.UserRepository
	UserHashtags repository.UserHashtagRepository
	Visits       repository.VisitRepository
}

// liveRoomServiceImpl implements LiveRoomService.
type liveRoomServiceImpl struct {
	registry     *RoomRegistry
	members      *MembershipTracker
	listing      *ListingAggregator
	tags         *TagIndex
	hub          *hub.Hub
	users        repository.UserRepository
	userHashtags repository.UserHashtagRepository
	visits       repository.VisitRepository
	eventIDs     idgen.Generator

	gracePeriod time.Duration
	graceMu     sync.Mutex
	graceTimers map[hub.Attachment]*time.Timer // pending leaves
	closing     bool
}

// NewLiveRoomService creates the service. A zero gracePeriod removes the
// membership as soon as the user's last connection to a room drops.
func NewLiveRoomService(deps Deps, gracePeriod time.Duration) LiveRoomService {
	return &liveRoomServiceImpl{
		registry:     deps.Registry,
		members:      deps.Members,
		listing:      deps.Listing,
		tags:         deps.Tags,
		hub:          deps.Hub,
		users:        deps.Users,
		userHashtags: deps.UserHashtags,
		visits:       deps.Visits,
		eventIDs:     idgen.NewULID(),
		gracePeriod:  gracePeriod,
		graceTimers:  make(map[hub.Attachment]*time.Timer),
	}
}

func (s *liveRoomServiceImpl) toResponse(ctx context.Context, room *domain.Room) *domain.RoomResponse {
	count, err := s.members.CountActive(ctx, room.ID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, room.ID).Msg("viewer count unavailable")
	}
	resp := room.ToResponse(count)
	return &resp
}

// CreateRoom creates a room hosted by req.HostEmail.
func (s *liveRoomServiceImpl) CreateRoom(ctx context.Context, req *domain.CreateRoomRequest) (*domain.RoomResponse, error) {
	room, err := s.registry.CreateRoom(ctx, req)
	if err != nil {
		return nil, err
	}
	audit.LogWithDetail(ctx, audit.ActionCreateRoom, room.HostUserID, room.ID, room.Title, "room created")

	resp := room.ToResponse(0)
	return &resp, nil
}

func (s *liveRoomServiceImpl) resolveRoom(ctx context.Context, title, code string) (*domain.Room, error) {
	title = strings.TrimSpace(title)
	code = strings.TrimSpace(code)
	switch {
	case code != "":
		return s.registry.FindByJoinCode(ctx, code)
	case title != "":
		return s.registry.FindByTitle(ctx, title)
	default:
		return nil, fmt.Errorf("%w: title or join code is required", domain.ErrInvalidInput)
	}
}

// EnterRoom records the user's membership in the room named by title or
// join code. Re-entering is idempotent.
func (s *liveRoomServiceImpl) EnterRoom(ctx context.Context, userID string, req *domain.EnterRoomRequest) (*domain.RoomResponse, error) {
	ok, err := s.users.UserExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}

	room, err := s.resolveRoom(ctx, req.Title, req.JoinCode)
	if err != nil {
		return nil, err
	}

	added, err := s.members.Enter(ctx, userID, room.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The room closed mid-enter; drop anything another of the
			// user's connections attached while the membership existed.
			s.hub.UnsubscribeUser(userID, room.ID)
		}
		return nil, err
	}
	s.cancelGrace(userID, room.ID)

	resp := s.toResponse(ctx, room)
	if added {
		audit.Log(ctx, audit.ActionEnterRoom, userID, room.ID, "entered room")
		s.broadcastCount(ctx, room.ID, resp.ViewerCount)
	}
	return resp, nil
}

// LeaveRoom ends the user's membership and detaches all of the user's
// connections from the room.
func (s *liveRoomServiceImpl) LeaveRoom(ctx context.Context, userID, roomID string) error {
	s.cancelGrace(userID, roomID)
	return s.leave(ctx, userID, roomID, audit.ActionLeaveRoom)
}

func (s *liveRoomServiceImpl) leave(ctx context.Context, userID, roomID, action string) error {
	removed, err := s.members.Leave(ctx, userID, roomID)
	if err != nil {
		return err
	}

	detached := s.hub.UnsubscribeUser(userID, roomID)
	if len(detached) > 0 {
		left, err := json.Marshal(domain.RoomAckMessage{Type: domain.MsgTypeLeft, RoomID: roomID})
		if err != nil {
			return fmt.Errorf("failed to marshal frame: %w", err)
		}
		for _, sub := range detached {
			sub.Deliver(left)
		}
	}

	if !removed {
		return nil
	}
	audit.Log(ctx, action, userID, roomID, "left room")

	count, err := s.members.CountActive(ctx, roomID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("viewer count unavailable")
		return nil
	}
	s.broadcastCount(ctx, roomID, count)
	return nil
}

// CloseRoom closes a room on behalf of its host, notifies every subscriber
// and clears all memberships.
func (s *liveRoomServiceImpl) CloseRoom(ctx context.Context, userID, roomID string) error {
	room, err := s.registry.Close(ctx, roomID, userID)
	if err != nil {
		return err
	}

	// Memberships go first: a subscribe checks membership under the
	// channel lock, so none can attach after the teardown below.
	users, err := s.members.Clear(ctx, roomID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to clear memberships")
	}
	for _, u := range users {
		s.cancelGrace(u, roomID)
	}

	if err := s.hub.CloseRoom(ctx, roomID, domain.RoomAckMessage{Type: domain.MsgTypeRoomClosed, RoomID: roomID}); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to tear down channel")
	}

	audit.LogWithDetail(ctx, audit.ActionCloseRoom, userID, roomID, room.Title, "room closed")
	return nil
}

func (s *liveRoomServiceImpl) ListRooms(ctx context.Context) ([]domain.RoomListing, error) {
	return s.listing.ListRooms(ctx)
}

// LookupRoom finds a room by title or join code without entering it.
func (s *liveRoomServiceImpl) LookupRoom(ctx context.Context, req *domain.LookupRoomRequest) (*domain.RoomResponse, error) {
	room, err := s.resolveRoom(ctx, req.Title, req.JoinCode)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, room), nil
}

func (s *liveRoomServiceImpl) ViewerCount(ctx context.Context, roomID string) (int, error) {
	if _, err := s.registry.FindByID(ctx, roomID); err != nil {
		return 0, err
	}
	return s.members.CountActive(ctx, roomID)
}

func (s *liveRoomServiceImpl) PublishChatMessage(ctx context.Context, userID, roomID, body string) (*domain.RoomEvent, error) {
	return s.publish(ctx, domain.NewChatMessage(roomID, userID, body))
}

func (s *liveRoomServiceImpl) PublishEmoji(ctx context.Context, userID, roomID, emojiType string) (*domain.RoomEvent, error) {
	return s.publish(ctx, domain.NewEmojiReaction(roomID, userID, emojiType))
}

func (s *liveRoomServiceImpl) publish(ctx context.Context, event domain.RoomEvent) (*domain.RoomEvent, error) {
	id, err := s.eventIDs.Generate()
	if err != nil {
		return nil, err
	}
	event.ID = id

	if err := s.hub.Publish(ctx, event); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			audit.LogWithDetail(ctx, audit.ActionPublishDenied, event.SenderID, event.RoomID, string(event.Type), "publish without membership")
		}
		return nil, err
	}
	return &event, nil
}

func (s *liveRoomServiceImpl) Subscribe(ctx context.Context, sub hub.Subscriber, roomID string) (int, error) {
	if err := s.hub.Subscribe(ctx, sub, roomID); err != nil {
		return 0, err
	}
	s.cancelGrace(sub.UserID(), roomID)
	audit.Log(ctx, audit.ActionSubscribe, sub.UserID(), roomID, "connection subscribed")

	count, err := s.members.CountActive(ctx, roomID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("viewer count unavailable")
	}
	return count, nil
}

// Unsubscribe detaches one connection. The membership is kept.
func (s *liveRoomServiceImpl) Unsubscribe(ctx context.Context, sub hub.Subscriber, roomID string) error {
	if !s.hub.Unsubscribe(sub.ID(), roomID) {
		return fmt.Errorf("%w: connection is not subscribed to room %s", domain.ErrNotFound, roomID)
	}
	return nil
}

// Disconnect detaches the connection everywhere and schedules a leave for
// every room the user no longer has a connection to.
func (s *liveRoomServiceImpl) Disconnect(ctx context.Context, sub hub.Subscriber) {
	rooms := s.hub.UnsubscribeAll(sub.ID())
	userID := sub.UserID()
	if userID == "" {
		return
	}
	for _, roomID := range rooms {
		if s.hub.HasUserConnection(userID, roomID) {
			continue
		}
		s.scheduleLeave(userID, roomID)
	}
	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldConnID, sub.ID()).
		Strs("rooms", rooms).
		Msg("connection detached")
}

func (s *liveRoomServiceImpl) scheduleLeave(userID, roomID string) {
	key := hub.Attachment{RoomID: roomID, UserID: userID}
	s.graceMu.Lock()
	if s.gracePeriod <= 0 || s.closing {
		s.graceMu.Unlock()
		s.expireGrace(userID, roomID)
		return
	}
	defer s.graceMu.Unlock()

	if t, ok := s.graceTimers[key]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.gracePeriod, func() {
		s.graceMu.Lock()
		current := s.graceTimers[key] == timer
		if current {
			delete(s.graceTimers, key)
		}
		s.graceMu.Unlock()
		if current {
			s.expireGrace(userID, roomID)
		}
	})
	s.graceTimers[key] = timer
}

func (s *liveRoomServiceImpl) expireGrace(userID, roomID string) {
	if s.hub.HasUserConnection(userID, roomID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.leave(ctx, userID, roomID, audit.ActionGraceLeave); err != nil {
		l := log.L()
		l.Warn().Err(err).Str(log.FieldUserID, userID).Str(log.FieldRoomID, roomID).Msg("grace leave failed")
	}
}

func (s *liveRoomServiceImpl) cancelGrace(userID, roomID string) {
	key := hub.Attachment{RoomID: roomID, UserID: userID}
	s.graceMu.Lock()
	if t, ok := s.graceTimers[key]; ok {
		t.Stop()
		delete(s.graceTimers, key)
	}
	s.graceMu.Unlock()
}

func (s *liveRoomServiceImpl) broadcastCount(ctx context.Context, roomID string, count int) {
	msg := domain.CountMessage{Type: domain.MsgTypeCount, RoomID: roomID, ViewerCount: count}
	if err := s.hub.Broadcast(ctx, roomID, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to broadcast count")
	}
}

func (s *liveRoomServiceImpl) HostedRooms(ctx context.Context, email string) ([]domain.RoomResponse, error) {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return nil, err
	}
	rooms, err := s.registry.HostedBy(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RoomResponse, 0, len(rooms))
	for i := range rooms {
		out = append(out, *s.toResponse(ctx, &rooms[i]))
	}
	return out, nil
}

func (s *liveRoomServiceImpl) ViewHistory(ctx context.Context, email string) ([]domain.RoomVisit, error) {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return nil, err
	}
	visits, err := s.visits.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	if visits == nil {
		visits = []domain.RoomVisit{}
	}
	return visits, nil
}

func (s *liveRoomServiceImpl) AddUserHashtag(ctx context.Context, email, name string) error {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return err
	}
	tagID, err := s.tags.ResolveOrCreate(ctx, name)
	if err != nil {
		return err
	}
	if err := s.userHashtags.Add(ctx, userID, tagID); err != nil {
		return err
	}
	audit.LogWithDetail(ctx, audit.ActionAddHashtag, userID, "", name, "interest added")
	return nil
}

// RemoveUserHashtag is a no-op for a tag the user never added, but an
// unknown tag name is NotFound.
func (s *liveRoomServiceImpl) RemoveUserHashtag(ctx context.Context, email, name string) error {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return err
	}
	tagID, err := s.tags.Lookup(ctx, name)
	if err != nil {
		return err
	}
	if err := s.userHashtags.Remove(ctx, userID, tagID); err != nil {
		return err
	}
	audit.LogWithDetail(ctx, audit.ActionRemoveHashtag, userID, "", name, "interest removed")
	return nil
}

func (s *liveRoomServiceImpl) ListUserHashtags(ctx context.Context, email string) ([]string, error) {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return nil, err
	}
	names, err := s.userHashtags.ListNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Shutdown drains every channel and ends the memberships this instance
// was holding: those of the drained connections and of pending grace
// timers. Memberships with no live connection here would otherwise never
// be removed.
func (s *liveRoomServiceImpl) Shutdown(ctx context.Context) error {
	s.graceMu.Lock()
	s.closing = true
	pending := make([]hub.Attachment, 0, len(s.graceTimers))
	for key, t := range s.graceTimers {
		// A timer that already fired finds itself gone from the map and
		// does nothing, so it is ended here as well.
		t.Stop()
		pending = append(pending, key)
		delete(s.graceTimers, key)
	}
	s.graceMu.Unlock()

	drained, err := s.hub.Shutdown(ctx)
	for _, a := range append(pending, drained...) {
		if lerr := s.leave(ctx, a.UserID, a.RoomID, audit.ActionShutdownLeave); lerr != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(lerr).Str(log.FieldUserID, a.UserID).Str(log.FieldRoomID, a.RoomID).Msg("shutdown leave failed")
		}
	}
	return err
}
